package agent

import (
	"database/sql"
	"time"
)

// Agent represents a CSS (client support specialist) user who services
// a pool of visa cases.
type Agent struct {
	ID         int64
	TelegramID int64
	Name       string // login/display name, also the comment author name on cases
	LastName   sql.NullString
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
