package membership_test

import (
	"testing"

	"ican-workers/internal/membership"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeTally(t *testing.T) {
	threshold := decimal.RequireFromString("0.60")

	tests := []struct {
		name        string
		yes, no     int
		total       int
		pct         float64
		needed      int
		reached     bool
		unreachable bool
	}{
		{name: "no members", yes: 0, no: 0, total: 0, pct: 0, needed: 0},
		{name: "no votes yet", yes: 0, no: 0, total: 5, pct: 0, needed: 3},
		{name: "below threshold", yes: 2, no: 0, total: 5, pct: 40, needed: 1},
		{name: "exactly sixty percent", yes: 3, no: 1, total: 5, pct: 60, needed: 0, reached: true},
		{name: "two of three", yes: 2, no: 1, total: 3, pct: 66.67, needed: 0, reached: true},
		{name: "one of three after all voted", yes: 1, no: 2, total: 3, pct: 33.33, needed: 1, unreachable: true},
		{name: "still reachable", yes: 1, no: 1, total: 5, pct: 20, needed: 2},
		{name: "too many no votes", yes: 1, no: 3, total: 5, pct: 20, needed: 2, unreachable: true},
		{name: "fifty nine point nine is short", yes: 599, no: 0, total: 1000, pct: 59.9, needed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := membership.ComputeTally(tt.yes, tt.no, tt.total, threshold)
			assert.Equal(t, tt.pct, got.YesPercentage)
			assert.Equal(t, tt.needed, got.VotesNeeded)
			assert.Equal(t, tt.reached, got.ThresholdReached)
			assert.Equal(t, tt.unreachable, got.ThresholdUnreachable)
			assert.Equal(t, tt.yes+tt.no, got.TotalVoted)
		})
	}
}
