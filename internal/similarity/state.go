package similarity

// State is the lifecycle state of an Index.
type State int

const (
	// StateAbsent: no generation loaded yet.
	StateAbsent State = iota
	// StateBuilding: a build is running; queries use the previous generation
	// if there is one.
	StateBuilding
	// StateReady: a generation is loaded and current as far as the index
	// knows.
	StateReady
	// StateStale: a generation is loaded but a caller reported catalog
	// changes since it was built.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}
