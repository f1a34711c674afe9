package ops

import (
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/qlib/internal/db"
	"github.com/hpungsan/qlib/internal/errors"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Op     string // optional filter: sort, dedupe, fix, convert
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Runs       []db.Run   `json:"runs"`
	Pagination Pagination `json:"pagination"`
	Sort       string     `json:"sort"`
}

// History lists recorded runs, newest first.
func History(database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	op := strings.TrimSpace(input.Op)
	switch op {
	case "", OpSort, OpDedupe, OpFix, OpConvert:
	default:
		return nil, errors.NewInvalidRequest("op must be one of: sort, dedupe, fix, convert")
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	// Ensure offset is non-negative
	offset := max(input.Offset, 0)

	runs, total, err := db.ListRuns(database, db.RunFilter{Op: op, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	return &HistoryOutput{
		Runs: runs,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(runs) < total,
			Total:   total,
		},
		Sort: "started_at_desc",
	}, nil
}

// FetchRunInput contains parameters for the FetchRun operation.
type FetchRunInput struct {
	ID string // required
}

// FetchRunOutput contains a run and its per-record decisions.
type FetchRunOutput struct {
	Run       db.Run        `json:"run"`
	Decisions []db.Decision `json:"decisions"`
}

// FetchRun retrieves one run by ID.
func FetchRun(database *sql.DB, input FetchRunInput) (*FetchRunOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	run, err := db.GetRun(database, id)
	if err != nil {
		return nil, err
	}
	decisions, err := db.ListDecisions(database, id)
	if err != nil {
		return nil, err
	}
	return &FetchRunOutput{Run: *run, Decisions: decisions}, nil
}

// PruneInput contains parameters for the Prune operation.
type PruneInput struct {
	OlderThanDays int // required, > 0
}

// PruneOutput contains the result of the Prune operation.
type PruneOutput struct {
	Pruned int   `json:"pruned"`
	Before int64 `json:"before"`
}

// Prune deletes recorded runs older than the given number of days.
func Prune(database *sql.DB, input PruneInput) (*PruneOutput, error) {
	if input.OlderThanDays <= 0 {
		return nil, errors.NewInvalidRequest("older_than_days must be positive")
	}
	before := time.Now().Add(-time.Duration(input.OlderThanDays) * 24 * time.Hour).Unix()
	n, err := db.DeleteRunsBefore(database, before)
	if err != nil {
		return nil, err
	}
	return &PruneOutput{Pruned: n, Before: before}, nil
}
