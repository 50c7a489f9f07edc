package store

// lifecycleState is the store's position in the state machine from
// spec §4.7: Unloaded -> Loading -> Loaded -> {ClosingDatabase -> Loaded
// | TearingDown -> TornDown}. Deleted is tracked separately as a bool,
// since it is reachable from Loaded without otherwise changing which of
// these states the store is in (spec §4.7 "Deleted is an orthogonal flag").
type lifecycleState int

const (
	stateUnloaded lifecycleState = iota
	stateLoading
	stateLoaded
	stateClosingDatabase
	stateTearingDown
	stateTornDown
)

func (s lifecycleState) String() string {
	switch s {
	case stateUnloaded:
		return "Unloaded"
	case stateLoading:
		return "Loading"
	case stateLoaded:
		return "Loaded"
	case stateClosingDatabase:
		return "ClosingDatabase"
	case stateTearingDown:
		return "TearingDown"
	case stateTornDown:
		return "TornDown"
	default:
		return "Unknown"
	}
}
