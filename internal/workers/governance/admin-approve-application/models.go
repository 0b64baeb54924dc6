// internal/workers/governance/admin-approve-application/models.go
package adminapproveapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
	AdminID       string `json:"adminId"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	DecidedBy         string `json:"decidedBy"`
	// VotingOpen tells the process to start collecting member votes.
	VotingOpen bool `json:"votingOpen"`
}
