package agent

import (
	"context"
)

// Repository defines the operations for persisting and retrieving Agent entities.
type Repository interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id int64) (*Agent, error)
	GetByName(ctx context.Context, name string) (*Agent, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*Agent, error)
	Update(ctx context.Context, a *Agent) error
	ListActive(ctx context.Context) ([]*Agent, error)
	ListAll(ctx context.Context) ([]*Agent, error) // For admin purposes
}
