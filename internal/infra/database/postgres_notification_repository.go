package database

import (
	"context"
	"database/sql"
	"fmt"

	"visa_case_bot/internal/domain/notification"
)

var ErrNotificationNotFound = fmt.Errorf("notification record not found")

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

// Append persists the whole scan output in one transaction so a failing tick
// leaves no partial writes behind.
func (r *PostgresNotificationRepository) Append(ctx context.Context, records []*notification.Record) error {
	if len(records) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for notification append: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO notification_records
               (record_type, case_id, case_no, client_name, agent_name, item_name, message, deadline, read)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
               RETURNING id, created_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for notification append: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		err := stmt.QueryRowContext(ctx,
			rec.Type, rec.CaseID, rec.CaseNo, rec.ClientName, rec.AgentName,
			rec.ItemName, rec.Message, rec.Deadline,
		).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("error appending notification record (case %d, item %q): %w", rec.CaseID, rec.ItemName, err)
		}
	}

	return txn.Commit()
}

func (r *PostgresNotificationRepository) UnreadExists(ctx context.Context, caseID int64, itemName, message string) (bool, error) {
	query := `SELECT EXISTS (
                 SELECT 1 FROM notification_records
                 WHERE case_id = $1 AND item_name = $2 AND message = $3 AND read = FALSE
               )`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, caseID, itemName, message).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking unread notification match: %w", err)
	}
	return exists, nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notification_records SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error marking notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) ClearRead(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notification_records WHERE read = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("error clearing read notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting cleared notifications: %w", err)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) ListUnreadByAgent(ctx context.Context, agentName string) ([]*notification.Record, error) {
	query := `SELECT id, record_type, case_id, case_no, client_name, agent_name, item_name, message, deadline, read, created_at
               FROM notification_records
               WHERE agent_name = $1 AND read = FALSE
               ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, agentName)
	if err != nil {
		return nil, fmt.Errorf("error querying unread notifications: %w", err)
	}
	defer rows.Close()

	records := make([]*notification.Record, 0)
	for rows.Next() {
		rec := &notification.Record{}
		if err := rows.Scan(
			&rec.ID, &rec.Type, &rec.CaseID, &rec.CaseNo, &rec.ClientName, &rec.AgentName,
			&rec.ItemName, &rec.Message, &rec.Deadline, &rec.Read, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning notification record: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification records: %w", err)
	}
	return records, nil
}
