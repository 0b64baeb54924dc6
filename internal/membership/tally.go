package membership

import (
	"context"
	"strings"

	"ican-workers/internal/audit"
	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/metrics"
	"ican-workers/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeTally derives the vote summary from raw counts. threshold is a ratio
// such as 0.60. A group with no members never reaches the threshold.
func ComputeTally(yes, no, totalMembers int, threshold decimal.Decimal) models.Tally {
	t := models.Tally{
		YesVotes:     yes,
		NoVotes:      no,
		TotalVoted:   yes + no,
		TotalMembers: totalMembers,
	}
	if totalMembers <= 0 {
		return t
	}

	yesD := decimal.NewFromInt(int64(yes))
	totalD := decimal.NewFromInt(int64(totalMembers))

	t.YesPercentage = yesD.Mul(hundred).Div(totalD).Round(2).InexactFloat64()
	t.ThresholdReached = yesD.GreaterThanOrEqual(threshold.Mul(totalD))

	required := int(threshold.Mul(totalD).Ceil().IntPart())
	if needed := required - yes; needed > 0 {
		t.VotesNeeded = needed
	}

	outstanding := totalMembers - t.TotalVoted
	if outstanding < 0 {
		outstanding = 0
	}
	t.ThresholdUnreachable = !t.ThresholdReached && yes+outstanding < required
	return t
}

// VoteResult is returned by CastVote.
type VoteResult struct {
	Success          bool                     `json:"success"`
	ThresholdReached bool                     `json:"thresholdReached"`
	YesPercentage    float64                  `json:"yesPercentage"`
	VotesNeeded      int                      `json:"votesNeeded"`
	YesVotes         int                      `json:"yesVotes"`
	NoVotes          int                      `json:"noVotes"`
	TotalVoted       int                      `json:"totalVoted"`
	TotalMembers     int                      `json:"totalMembers"`
	Status           models.ApplicationStatus `json:"status"`
}

// resolver is invoked inside the vote transaction with the fresh tally and
// returns the application's resulting status.
type resolver func(ctx context.Context, tx Tx, rec *audit.Recorder, app *models.MembershipApplication, tally models.Tally) (models.ApplicationStatus, error)

// TallyEngine records votes and keeps the running tally.
type TallyEngine struct {
	deps
	resolve resolver
}

// CastVote records one vote. The application row is locked for the whole
// transaction so concurrent votes on the same application are serialized and
// the threshold transition happens exactly once.
func (e *TallyEngine) CastVote(ctx context.Context, applicationID, voterID, choice string) (*VoteResult, error) {
	applicationID = strings.TrimSpace(applicationID)
	voterID = strings.TrimSpace(voterID)
	if applicationID == "" || voterID == "" {
		return nil, apperrors.NewValidationError("applicationId and voterId are required")
	}
	vote, err := models.ParseVoteChoice(choice)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	var (
		rec      audit.Recorder
		result   *VoteResult
		app      *models.MembershipApplication
		members  []models.GroupMembership
		previous models.ApplicationStatus
	)

	err = e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		app, err = tx.GetApplication(ctx, applicationID, true)
		if err != nil {
			return err
		}
		previous = app.Status
		if app.Status != models.StatusVotingInProgress {
			return apperrors.NewStateError("application " + applicationID + " is " + app.Status.String() + ", not open for voting")
		}

		member, err := tx.GetMembership(ctx, app.GroupID, voterID)
		if err != nil {
			return err
		}
		if member == nil {
			return apperrors.NewForbiddenError("voter " + voterID + " is not a member of group " + app.GroupID)
		}

		now := e.now()
		inserted, err := tx.InsertVote(ctx, models.Vote{
			ApplicationID: applicationID,
			VoterID:       voterID,
			Choice:        vote,
			CastAt:        now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return apperrors.NewDuplicateVoteError(applicationID, voterID)
		}

		tally, err := e.loadTally(ctx, tx, app)
		if err != nil {
			return err
		}

		if err := rec.Record(ctx, tx, models.AuditVoteCast, models.ResourceApplication, applicationID, voterID, map[string]interface{}{
			"choice":       vote,
			"yesVotes":     tally.YesVotes,
			"noVotes":      tally.NoVotes,
			"totalMembers": tally.TotalMembers,
		}, now); err != nil {
			return err
		}

		status := app.Status
		if e.resolve != nil {
			status, err = e.resolve(ctx, tx, &rec, app, tally)
			if err != nil {
				return err
			}
		}
		if status != previous {
			members, err = tx.ListMembers(ctx, app.GroupID)
			if err != nil {
				return err
			}
		}

		result = &VoteResult{
			Success:          true,
			ThresholdReached: tally.ThresholdReached,
			YesPercentage:    tally.YesPercentage,
			VotesNeeded:      tally.VotesNeeded,
			YesVotes:         tally.YesVotes,
			NoVotes:          tally.NoVotes,
			TotalVoted:       tally.TotalVoted,
			TotalMembers:     tally.TotalMembers,
			Status:           status,
		}
		return nil
	})
	if err != nil {
		metrics.VotesRejected.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}

	metrics.VotesCast.WithLabelValues(string(vote)).Inc()
	rec.Flush(ctx, e.mirror)

	e.logger.Info("vote cast", map[string]interface{}{
		"applicationId": applicationID,
		"voterId":       voterID,
		"choice":        vote,
		"yesVotes":      result.YesVotes,
		"totalMembers":  result.TotalMembers,
		"status":        result.Status,
	})

	if result.Status != previous {
		e.notifyResolution(ctx, app, result.Status, members)
	}
	return result, nil
}

// GetTally is a read-only view of the current tally.
func (e *TallyEngine) GetTally(ctx context.Context, applicationID string) (*models.Tally, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, apperrors.NewValidationError("applicationId is required")
	}

	var tally models.Tally
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		app, err := tx.GetApplication(ctx, applicationID, false)
		if err != nil {
			return err
		}
		tally, err = e.loadTally(ctx, tx, app)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &tally, nil
}

func (e *TallyEngine) loadTally(ctx context.Context, tx Tx, app *models.MembershipApplication) (models.Tally, error) {
	yes, no, err := tx.CountVotes(ctx, app.ID)
	if err != nil {
		return models.Tally{}, err
	}
	total, err := tx.CountMembers(ctx, app.GroupID)
	if err != nil {
		return models.Tally{}, err
	}
	tally := ComputeTally(yes, no, total, e.threshold)
	tally.ApplicationID = app.ID
	tally.Status = app.Status
	return tally, nil
}

func (e *TallyEngine) notifyResolution(ctx context.Context, app *models.MembershipApplication, status models.ApplicationStatus, members []models.GroupMembership) {
	recipients := append(memberIDs(members), app.ApplicantID)
	notifyType := models.NotifyApplicationApproved
	if status != models.StatusApproved {
		notifyType = models.NotifyApplicationRejected
	}
	e.notifier.Notify(ctx, models.Notification{
		Type:         notifyType,
		GroupID:      app.GroupID,
		RecipientIDs: recipients,
		ResourceID:   app.ID,
		Data:         map[string]interface{}{"status": string(status)},
	})
}

func memberIDs(members []models.GroupMembership) []string {
	ids := make([]string, 0, len(members)+1)
	for _, m := range members {
		ids = append(ids, m.MemberID)
	}
	return ids
}
