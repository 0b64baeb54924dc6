// internal/workers/investment/settle-allocation/models.go
package settleallocation

// Outcome values accepted by the worker.
const (
	OutcomeCompleted = "completed"
	OutcomeVoid      = "void"
)

type Input struct {
	AllocationID string `json:"allocationId"`
	Outcome      string `json:"outcome"`
}

type Output struct {
	AllocationID     string `json:"allocationId"`
	AllocationStatus string `json:"allocationStatus"`
}
