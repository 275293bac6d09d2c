package agent

// Phase is where an agent is inside its decision cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAssemblingContext
	PhaseAwaitingInference
	PhaseValidating
	PhaseReconciling
	PhaseExecuting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAssemblingContext:
		return "assembling_context"
	case PhaseAwaitingInference:
		return "awaiting_inference"
	case PhaseValidating:
		return "validating"
	case PhaseReconciling:
		return "reconciling"
	case PhaseExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name in JSON and YAML.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
