package db

import (
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/qlib/internal/errors"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID         string          `json:"id"`
	Op         string          `json:"op"`
	Root       string          `json:"root"`
	DryRun     bool            `json:"dry_run"`
	StartedAt  int64           `json:"started_at"`
	FinishedAt int64           `json:"finished_at"`
	Summary    json.RawMessage `json:"summary,omitempty"`
}

// Decision is one per-record outcome of a run.
type Decision struct {
	Seq        int      `json:"seq"`
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Path       string   `json:"path"`
	Index      int      `json:"index"`
	Source     string   `json:"source,omitempty"`
	Category   string   `json:"category,omitempty"`
	Platform   string   `json:"platform,omitempty"`
	Score      *int     `json:"score,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Op     string
	Limit  int
	Offset int
}

// InsertRun stores a run and its decisions in one transaction.
// Decision Seq values are assigned in slice order.
func InsertRun(db *sql.DB, r *Run, decisions []Decision) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	var summary sql.NullString
	if len(r.Summary) > 0 {
		summary = sql.NullString{String: string(r.Summary), Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, op, root, dry_run, started_at, finished_at, summary_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Op, r.Root, boolToInt(r.DryRun), r.StartedAt, r.FinishedAt, summary)
	if err != nil {
		return errors.NewInternal(err)
	}

	if len(decisions) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO decisions (
				run_id, seq, name, role, path, idx,
				source, category, platform, score, similarity
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return errors.NewInternal(err)
		}
		defer stmt.Close()

		for i := range decisions {
			d := &decisions[i]
			d.Seq = i
			_, err := stmt.Exec(r.ID, d.Seq, d.Name, d.Role, d.Path, d.Index,
				toNullString(d.Source), toNullString(d.Category), toNullString(d.Platform),
				toNullInt(d.Score), toNullFloat(d.Similarity))
			if err != nil {
				return errors.NewInternal(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetRun retrieves a run by its ULID.
func GetRun(db *sql.DB, id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, op, root, dry_run, started_at, finished_at, summary_json
		FROM runs
		WHERE id = ?
	`, id)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListRuns returns runs newest first along with the total matching count.
func ListRuns(db *sql.DB, f RunFilter) ([]Run, int, error) {
	where := ""
	var args []any
	if f.Op != "" {
		where = " WHERE op = ?"
		args = append(args, f.Op)
	}

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT id, op, root, dry_run, started_at, finished_at, summary_json
		FROM runs` + where + `
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := db.Query(query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return runs, total, nil
}

// ListDecisions returns a run's decisions in insertion order.
func ListDecisions(db *sql.DB, runID string) ([]Decision, error) {
	rows, err := db.Query(`
		SELECT seq, name, role, path, idx, source, category, platform, score, similarity
		FROM decisions
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	decisions := []Decision{}
	for rows.Next() {
		var (
			d                          Decision
			source, category, platform sql.NullString
			score                      sql.NullInt64
			similarity                 sql.NullFloat64
		)
		if err := rows.Scan(&d.Seq, &d.Name, &d.Role, &d.Path, &d.Index,
			&source, &category, &platform, &score, &similarity); err != nil {
			return nil, errors.NewInternal(err)
		}
		d.Source = source.String
		d.Category = category.String
		d.Platform = platform.String
		if score.Valid {
			v := int(score.Int64)
			d.Score = &v
		}
		if similarity.Valid {
			v := similarity.Float64
			d.Similarity = &v
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return decisions, nil
}

// DeleteRunsBefore removes runs started before the given unix time.
// Decisions cascade.
func DeleteRunsBefore(db *sql.DB, before int64) (int, error) {
	result, err := db.Exec(`DELETE FROM runs WHERE started_at < ?`, before)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a Run.
func scanRun(row scanner) (*Run, error) {
	var (
		r       Run
		dryRun  int
		summary sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Op, &r.Root, &dryRun, &r.StartedAt, &r.FinishedAt, &summary); err != nil {
		return nil, err
	}
	r.DryRun = dryRun != 0
	if summary.Valid && summary.String != "" {
		r.Summary = json.RawMessage(summary.String)
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// toNullString maps "" to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func toNullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
