package app

import (
	"context"
	"database/sql"
	"fmt"

	"visa_case_bot/internal/domain/agent"
	idb "visa_case_bot/internal/infra/database"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")
var ErrAgentAlreadyExists = fmt.Errorf("agent with this Telegram ID already exists")
var ErrAgentAlreadyInactive = fmt.Errorf("agent is already inactive")

type AdminService struct {
	agentRepo       agent.Repository
	adminTelegramID int64
}

func NewAdminService(ar agent.Repository, adminID int64) *AdminService {
	return &AdminService{
		agentRepo:       ar,
		adminTelegramID: adminID,
	}
}

// AddAgent handles the business logic for registering a new CSS agent.
func (s *AdminService) AddAgent(ctx context.Context, performingAdminID int64, telegramID int64, name string, lastNameValue string) (*agent.Agent, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}

	_, err := s.agentRepo.GetByTelegramID(ctx, telegramID)
	if err == nil { // Agent found, so already exists
		return nil, ErrAgentAlreadyExists
	}
	if err != idb.ErrAgentNotFound {
		return nil, fmt.Errorf("failed to check existing agent: %w", err)
	}

	var lastName sql.NullString
	if lastNameValue != "" {
		lastName.String = lastNameValue
		lastName.Valid = true
	}

	newAgent := &agent.Agent{
		TelegramID: telegramID,
		Name:       name,
		LastName:   lastName,
		IsActive:   true, // New agents are active by default
	}

	err = s.agentRepo.Create(ctx, newAgent)
	if err != nil {
		if err == idb.ErrDuplicateAgent {
			return nil, ErrAgentAlreadyExists
		}
		return nil, fmt.Errorf("failed to create agent in repository: %w", err)
	}

	return newAgent, nil
}

// RemoveAgent deactivates an agent; their case pool is expected to be
// reassigned by the CRUD layer.
func (s *AdminService) RemoveAgent(ctx context.Context, performingAdminID int64, telegramID int64) (*agent.Agent, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}

	target, err := s.agentRepo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		if err == idb.ErrAgentNotFound {
			return nil, idb.ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent by Telegram ID for removal: %w", err)
	}

	if !target.IsActive {
		return target, ErrAgentAlreadyInactive
	}

	target.IsActive = false
	err = s.agentRepo.Update(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to update agent to inactive in repository: %w", err)
	}

	return target, nil
}

// ListAgents returns active agents, or all agents when includeInactive is set.
func (s *AdminService) ListAgents(ctx context.Context, performingAdminID int64, includeInactive bool) ([]*agent.Agent, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	if includeInactive {
		return s.agentRepo.ListAll(ctx)
	}
	return s.agentRepo.ListActive(ctx)
}
