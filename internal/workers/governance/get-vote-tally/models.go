// internal/workers/governance/get-vote-tally/models.go
package getvotetally

import "ican-workers/internal/models"

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	Tally             *models.Tally `json:"tally"`
	ApplicationStatus string        `json:"applicationStatus"`
	ThresholdReached  bool          `json:"thresholdReached"`
	// VotingOpen is false once the application left voting_in_progress.
	VotingOpen bool `json:"votingOpen"`
}
