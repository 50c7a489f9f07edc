package store

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const manifestFileName = "manifest.yaml"

// manifest is the advisory, non-authoritative record of known device
// identifiers and human-readable labels kept at the store root (spec
// SPEC_FULL §A.2). Its presence or absence never blocks Load; it exists
// purely so a human poking at the file package (or the CLI) can see
// which identifiers correspond to which device without opening any log.
type manifest struct {
	Devices map[string]string `yaml:"devices"` // device identifier -> label
}

func loadManifest(root string) (manifest, error) {
	path := filepath.Join(root, manifestFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return manifest{Devices: map[string]string{}}, nil
	}
	if err != nil {
		return manifest{}, &IOFailure{Op: "read manifest", Path: path, Err: err}
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return manifest{}, &IOFailure{Op: "parse manifest", Path: path, Err: err}
	}
	if m.Devices == nil {
		m.Devices = map[string]string{}
	}
	return m, nil
}

func (m manifest) save(root string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	path := filepath.Join(root, manifestFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &IOFailure{Op: "write manifest", Path: path, Err: err}
	}
	return nil
}

// recordDevice adds device to the manifest (with an empty label, if not
// already present) and rewrites it, per SPEC_FULL §A.2 ("rewritten
// whenever a new foreign device is first observed"). A no-op if the
// device is already recorded.
func recordDevice(root, device string) error {
	m, err := loadManifest(root)
	if err != nil {
		return err
	}
	if _, ok := m.Devices[device]; ok {
		return nil
	}
	m.Devices[device] = ""
	return m.save(root)
}
