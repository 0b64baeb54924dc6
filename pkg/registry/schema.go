// pkg/registry/schema.go
package registry

// Activity categories map to directories under internal/workers.
const (
	CategoryGovernance = "governance"
	CategoryInvestment = "investment"
	CategoryExchange   = "exchange"
)

// Categories lists the accepted activity categories.
var Categories = []string{CategoryGovernance, CategoryInvestment, CategoryExchange}

type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

// Activity describes one service task: its Zeebe job type, the schema its
// variables are validated against and the error codes it can raise.
type Activity struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema,omitempty"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries"`
	// Processes are the BPMN process ids that call this task.
	Processes []string `json:"processes,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func validCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
