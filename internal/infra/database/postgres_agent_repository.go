package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"visa_case_bot/internal/domain/agent"
)

// Custom errors
var ErrAgentNotFound = fmt.Errorf("agent not found")
var ErrDuplicateAgent = fmt.Errorf("agent with this name or Telegram ID already exists")

type PostgresAgentRepository struct {
	db *sql.DB
}

func NewPostgresAgentRepository(db *sql.DB) *PostgresAgentRepository {
	return &PostgresAgentRepository{db: db}
}

func (r *PostgresAgentRepository) Create(ctx context.Context, a *agent.Agent) error {
	query := `INSERT INTO agents (telegram_id, name, last_name, is_active)
               VALUES ($1, $2, $3, $4)
               RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, a.TelegramID, a.Name, a.LastName, a.IsActive).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "unique constraint") {
			return ErrDuplicateAgent
		}
		return fmt.Errorf("error creating agent: %w", err)
	}
	return nil
}

func (r *PostgresAgentRepository) GetByID(ctx context.Context, id int64) (*agent.Agent, error) {
	query := `SELECT id, telegram_id, name, last_name, is_active, created_at, updated_at
               FROM agents WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresAgentRepository) GetByName(ctx context.Context, name string) (*agent.Agent, error) {
	query := `SELECT id, telegram_id, name, last_name, is_active, created_at, updated_at
               FROM agents WHERE name = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, name))
}

func (r *PostgresAgentRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*agent.Agent, error) {
	query := `SELECT id, telegram_id, name, last_name, is_active, created_at, updated_at
               FROM agents WHERE telegram_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, telegramID))
}

func (r *PostgresAgentRepository) scanOne(row *sql.Row) (*agent.Agent, error) {
	a := &agent.Agent{}
	err := row.Scan(&a.ID, &a.TelegramID, &a.Name, &a.LastName, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("error getting agent: %w", err)
	}
	return a, nil
}

func (r *PostgresAgentRepository) Update(ctx context.Context, a *agent.Agent) error {
	query := `UPDATE agents
               SET name = $1, last_name = $2, is_active = $3, updated_at = NOW()
               WHERE id = $4
               RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query, a.Name, a.LastName, a.IsActive, a.ID).Scan(&a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrAgentNotFound
		}
		return fmt.Errorf("error updating agent: %w", err)
	}
	return nil
}

func (r *PostgresAgentRepository) ListActive(ctx context.Context) ([]*agent.Agent, error) {
	query := `SELECT id, telegram_id, name, last_name, is_active, created_at, updated_at
               FROM agents WHERE is_active = TRUE ORDER BY name`
	return r.list(ctx, query)
}

func (r *PostgresAgentRepository) ListAll(ctx context.Context) ([]*agent.Agent, error) {
	query := `SELECT id, telegram_id, name, last_name, is_active, created_at, updated_at
               FROM agents ORDER BY id`
	return r.list(ctx, query)
}

func (r *PostgresAgentRepository) list(ctx context.Context, query string) ([]*agent.Agent, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing agents: %w", err)
	}
	defer rows.Close()

	agents := make([]*agent.Agent, 0)
	for rows.Next() {
		a := &agent.Agent{}
		if err := rows.Scan(&a.ID, &a.TelegramID, &a.Name, &a.LastName, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}
	return agents, nil
}
