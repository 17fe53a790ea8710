package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"visa_case_bot/internal/domain/casefile"
	"visa_case_bot/internal/domain/cycle"
)

var ErrCaseNotFound = fmt.Errorf("case not found")
var ErrCommitmentNotFound = fmt.Errorf("commitment not found")
var ErrHighlightNotFound = fmt.Errorf("critical highlight not found")

type PostgresCaseRepository struct {
	db *sql.DB
}

func NewPostgresCaseRepository(db *sql.DB) *PostgresCaseRepository {
	return &PostgresCaseRepository{db: db}
}

const caseColumns = `id, case_no, client_name, assigned_css, stage, flag, suppressed, created_at, updated_at`

func scanCase(scanner interface{ Scan(...any) error }) (*casefile.Case, error) {
	c := &casefile.Case{}
	err := scanner.Scan(&c.ID, &c.CaseNo, &c.ClientName, &c.AssignedCSS, &c.Stage, &c.Flag, &c.Suppressed, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindEligible returns active, non-suppressed cases for the agent in case-id
// order. Ascending id means the head of the pool is the longest-standing case,
// which the allocator's head/tail policy relies on.
func (r *PostgresCaseRepository) FindEligible(ctx context.Context, agentName string, track cycle.Track) ([]*casefile.Case, error) {
	query := `SELECT ` + caseColumns + `
               FROM cases
               WHERE assigned_css = $1 AND stage = $2 AND suppressed = FALSE`
	args := []any{agentName, casefile.StageActive}
	if track == cycle.TrackCritical {
		query += ` AND flag = $3`
		args = append(args, casefile.FlagCritical)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying eligible cases: %w", err)
	}
	defer rows.Close()

	cases := make([]*casefile.Case, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning eligible case: %w", err)
		}
		cases = append(cases, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating eligible cases: %w", err)
	}
	return cases, nil
}

func (r *PostgresCaseRepository) FindByID(ctx context.Context, id int64) (*casefile.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	c, err := scanCase(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("error getting case by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresCaseRepository) HasCommentToday(ctx context.Context, caseID int64, author string, day time.Time) (bool, error) {
	query := `SELECT EXISTS (
                 SELECT 1 FROM case_comments
                 WHERE case_id = $1 AND author = $2 AND created_at::date = $3::date
               )`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, caseID, author, day).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking same-day comment: %w", err)
	}
	return exists, nil
}

// FindWithOpenDeadlines returns every case holding at least one pending
// commitment or pending critical highlight, with those items attached.
func (r *PostgresCaseRepository) FindWithOpenDeadlines(ctx context.Context) ([]*casefile.Case, error) {
	query := `SELECT ` + caseColumns + `
               FROM cases
               WHERE id IN (SELECT case_id FROM commitments WHERE status = $1)
                  OR id IN (SELECT case_id FROM critical_highlights WHERE status = $1)
               ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, casefile.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("error querying cases with open deadlines: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*casefile.Case)
	ordered := make([]*casefile.Case, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning case with open deadlines: %w", err)
		}
		byID[c.ID] = c
		ordered = append(ordered, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cases with open deadlines: %w", err)
	}
	if len(ordered) == 0 {
		return ordered, nil
	}

	if err := r.attachPendingCommitments(ctx, byID); err != nil {
		return nil, err
	}
	if err := r.attachPendingHighlights(ctx, byID); err != nil {
		return nil, err
	}
	return ordered, nil
}

func (r *PostgresCaseRepository) attachPendingCommitments(ctx context.Context, byID map[int64]*casefile.Case) error {
	query := `SELECT id, case_id, description, deadline, status, created_at, updated_at
               FROM commitments WHERE status = $1 ORDER BY case_id, id`
	rows, err := r.db.QueryContext(ctx, query, casefile.StatusPending)
	if err != nil {
		return fmt.Errorf("error querying pending commitments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cm casefile.Commitment
		if err := rows.Scan(&cm.ID, &cm.CaseID, &cm.Description, &cm.Deadline, &cm.Status, &cm.CreatedAt, &cm.UpdatedAt); err != nil {
			return fmt.Errorf("error scanning pending commitment: %w", err)
		}
		if c, ok := byID[cm.CaseID]; ok {
			c.Commitments = append(c.Commitments, cm)
		}
	}
	return rows.Err()
}

func (r *PostgresCaseRepository) attachPendingHighlights(ctx context.Context, byID map[int64]*casefile.Case) error {
	query := `SELECT id, case_id, description, expiry, status, created_at, updated_at
               FROM critical_highlights WHERE status = $1 ORDER BY case_id, id`
	rows, err := r.db.QueryContext(ctx, query, casefile.StatusPending)
	if err != nil {
		return fmt.Errorf("error querying pending highlights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h casefile.CriticalHighlight
		if err := rows.Scan(&h.ID, &h.CaseID, &h.Description, &h.Expiry, &h.Status, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return fmt.Errorf("error scanning pending highlight: %w", err)
		}
		if c, ok := byID[h.CaseID]; ok {
			c.Highlights = append(c.Highlights, h)
		}
	}
	return rows.Err()
}

// SetCommitmentStatus updates a commitment's status. updated_at moves only
// when the value actually changes.
func (r *PostgresCaseRepository) SetCommitmentStatus(ctx context.Context, commitmentID int64, status casefile.ItemStatus) error {
	query := `UPDATE commitments
               SET updated_at = CASE WHEN status <> $1 THEN NOW() ELSE updated_at END,
                   status = $1
               WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, status, commitmentID)
	if err != nil {
		return fmt.Errorf("error updating commitment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCommitmentNotFound
	}
	return nil
}

// SetHighlightStatus updates a critical highlight's status with the same
// timestamp-on-change rule.
func (r *PostgresCaseRepository) SetHighlightStatus(ctx context.Context, highlightID int64, status casefile.ItemStatus) error {
	query := `UPDATE critical_highlights
               SET updated_at = CASE WHEN status <> $1 THEN NOW() ELSE updated_at END,
                   status = $1
               WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, status, highlightID)
	if err != nil {
		return fmt.Errorf("error updating highlight status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrHighlightNotFound
	}
	return nil
}
