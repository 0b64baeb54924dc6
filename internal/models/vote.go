// internal/models/vote.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// VoteChoice is a member's decision on an application.
type VoteChoice string

const (
	VoteYes VoteChoice = "yes"
	VoteNo  VoteChoice = "no"
)

// ParseVoteChoice accepts "yes"/"no" in any case.
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch VoteChoice(strings.ToLower(strings.TrimSpace(s))) {
	case VoteYes:
		return VoteYes, nil
	case VoteNo:
		return VoteNo, nil
	}
	return "", fmt.Errorf("vote choice must be yes or no, got %q", s)
}

// Vote is immutable once cast.
type Vote struct {
	ApplicationID string     `json:"applicationId"`
	VoterID       string     `json:"voterId"`
	Choice        VoteChoice `json:"choice"`
	CastAt        time.Time  `json:"castAt"`
}

// Tally summarises the votes on one application against current group size.
type Tally struct {
	ApplicationID    string            `json:"applicationId"`
	Status           ApplicationStatus `json:"status"`
	YesVotes         int               `json:"yesVotes"`
	NoVotes          int               `json:"noVotes"`
	TotalVoted       int               `json:"totalVoted"`
	TotalMembers     int               `json:"totalMembers"`
	YesPercentage    float64           `json:"yesPercentage"`
	VotesNeeded      int               `json:"votesNeeded"`
	ThresholdReached bool              `json:"thresholdReached"`
	// ThresholdUnreachable is set once the remaining members can no longer lift
	// the yes count to the threshold.
	ThresholdUnreachable bool `json:"thresholdUnreachable"`
}
