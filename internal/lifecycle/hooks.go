package lifecycle

import "context"

// Phase orders shutdown hooks. Hooks of one phase run concurrently; phases run in ascending order.
type Phase int

const (
	// PhaseIngress stops accepting new updates and requests.
	PhaseIngress Phase = iota
	// PhaseWorkers stops background processing and flushes pending writes.
	PhaseWorkers
	// PhaseResources closes connections.
	PhaseResources
)

func (p Phase) String() string {
	switch p {
	case PhaseIngress:
		return "ingress"
	case PhaseWorkers:
		return "workers"
	case PhaseResources:
		return "resources"
	default:
		return "unknown"
	}
}

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Phase Phase
	Fn    func(ctx context.Context) error
}
