// internal/workers/governance/admin-reject-application/models.go
package adminrejectapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
	AdminID       string `json:"adminId"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	DecidedBy         string `json:"decidedBy"`
}
