package release

// State is the orchestrator's position in the pipeline.
type State int

const (
	Validating State = iota
	ComputingPlan
	MutatingRepository
	Publishing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case ComputingPlan:
		return "computing-plan"
	case MutatingRepository:
		return "mutating-repository"
	case Publishing:
		return "publishing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}
