// internal/workers/governance/cast-vote/models.go
package castvote

type Input struct {
	ApplicationID string `json:"applicationId"`
	VoterID       string `json:"voterId"`
	Vote          string `json:"vote"`
}

// Output is flattened so BPMN gateways can branch on applicationStatus and
// thresholdReached directly.
type Output struct {
	VoteAccepted      bool    `json:"voteAccepted"`
	ThresholdReached  bool    `json:"thresholdReached"`
	YesPercentage     float64 `json:"yesPercentage"`
	VotesNeeded       int     `json:"votesNeeded"`
	YesVotes          int     `json:"yesVotes"`
	NoVotes           int     `json:"noVotes"`
	TotalVoted        int     `json:"totalVoted"`
	TotalMembers      int     `json:"totalMembers"`
	ApplicationStatus string  `json:"applicationStatus"`
}
