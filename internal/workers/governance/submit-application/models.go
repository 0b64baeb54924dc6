// internal/workers/governance/submit-application/models.go
package submitapplication

import "time"

type Input struct {
	GroupID         string `json:"groupId"`
	ApplicantID     string `json:"applicantId"`
	ApplicationText string `json:"applicationText"`
}

type Output struct {
	ApplicationID     string    `json:"applicationId"`
	ApplicationStatus string    `json:"applicationStatus"`
	SubmittedAt       time.Time `json:"submittedAt"`
}
