package cli

import (
	"encoding/json"
	"fmt"

	"github.com/parstore/parstore/internal/proptree"
)

// parseValue turns a JSON-encoded scalar/array/object from the command
// line into a proptree.Value, the way the CLI's only input format needs
// to map onto the store's fixed value grammar (spec §3).
func parseValue(raw string) (proptree.Value, error) {
	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q: %w", raw, err)
	}
	return toPropTree(decoded)
}

func toPropTree(v interface{}) (proptree.Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return proptree.Bool(t), nil
	case string:
		return proptree.String(t), nil
	case float64:
		if t == float64(int64(t)) {
			return proptree.Int(int64(t)), nil
		}
		return proptree.Float(t), nil
	case []interface{}:
		out := make(proptree.List, len(t))
		for i, e := range t {
			pv, err := toPropTree(e)
			if err != nil {
				return nil, err
			}
			out[i] = pv
		}
		return out, nil
	case map[string]interface{}:
		out := make(proptree.Map, len(t))
		for k, e := range t {
			pv, err := toPropTree(e)
			if err != nil {
				return nil, err
			}
			out[k] = pv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value of type %T", v)
	}
}

// fromPropTree turns a proptree.Value back into a plain Go value
// suitable for json.Marshal or fmt printing.
func fromPropTree(v proptree.Value) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case proptree.Bool:
		return bool(t)
	case proptree.Int:
		return int64(t)
	case proptree.Float:
		return float64(t)
	case proptree.String:
		return string(t)
	case proptree.Bytes:
		return []byte(t)
	case proptree.List:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = fromPropTree(e)
		}
		return out
	case proptree.Map:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = fromPropTree(e)
		}
		return out
	default:
		return fmt.Sprintf("%v", v)
	}
}
