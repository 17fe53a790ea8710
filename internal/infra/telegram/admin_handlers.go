package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"visa_case_bot/internal/app"
	"visa_case_bot/internal/domain/cycle"
	"visa_case_bot/internal/domain/notification"
	idb "visa_case_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterAdminHandlers registers handlers for admin commands.
func RegisterAdminHandlers(
	ctx context.Context,
	b *telebot.Bot,
	adminService *app.AdminService,
	batchSvc *app.BatchService,
	notifRepo notification.Repository,
	adminTelegramID int64,
	baseLogger *logrus.Entry,
) {
	b.Handle("/add_agent", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/add_agent",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("You are not allowed to run this command.")
		}

		args := c.Args()
		// Expected format: /add_agent <TelegramID> <Name> [LastName]
		if len(args) < 2 || len(args) > 3 {
			handlerLogger.WithField("args_count", len(args)).Warn("Invalid command format")
			return c.Send("Invalid format. Use: /add_agent <TelegramID> <Name> [LastName]")
		}

		telegramID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("The Telegram ID must be a number.")
		}

		name := args[1]
		if strings.TrimSpace(name) == "" {
			return c.Send("The name cannot be empty.")
		}

		var lastName string
		if len(args) == 3 {
			lastName = args[2]
		}

		newAgent, err := adminService.AddAgent(ctx, c.Sender().ID, telegramID, name, lastName)
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch err {
			case app.ErrAdminNotAuthorized:
				logWithError.Warn("Admin not authorized (service level)")
				return c.Send("You are not allowed to run this command.")
			case app.ErrAgentAlreadyExists:
				logWithError.Warn("Agent already exists")
				return c.Send(fmt.Sprintf("An agent with Telegram ID %d already exists.", telegramID))
			default:
				logWithError.Error("Failed to add agent")
				return c.Send(fmt.Sprintf("Failed to add the agent: %s", err.Error()))
			}
		}

		handlerLogger.WithField("new_agent_id", newAgent.ID).Info("Agent added successfully")
		return c.Send(fmt.Sprintf("Agent %s (Telegram ID %d) added.", newAgent.Name, newAgent.TelegramID))
	})

	b.Handle("/remove_agent", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/remove_agent",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("You are not allowed to run this command.")
		}

		args := c.Args()
		if len(args) != 1 {
			return c.Send("Invalid format. Use: /remove_agent <TelegramID>")
		}

		telegramID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			handlerLogger.WithField("arg", args[0]).Warn("Invalid Telegram ID format")
			return c.Send("The Telegram ID must be a number.")
		}

		removed, err := adminService.RemoveAgent(ctx, c.Sender().ID, telegramID)
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch err {
			case idb.ErrAgentNotFound:
				logWithError.Warn("Agent not found")
				return c.Send(fmt.Sprintf("No agent with Telegram ID %d.", telegramID))
			case app.ErrAgentAlreadyInactive:
				logWithError.Info("Agent already inactive")
				return c.Send(fmt.Sprintf("Agent %s is already inactive.", removed.Name))
			default:
				logWithError.Error("Failed to remove agent")
				return c.Send(fmt.Sprintf("Failed to deactivate the agent: %s", err.Error()))
			}
		}

		handlerLogger.WithField("agent_id", removed.ID).Info("Agent deactivated")
		return c.Send(fmt.Sprintf("Agent %s deactivated. Remember to reassign their cases.", removed.Name))
	})

	b.Handle("/list_agents", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/list_agents",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("You are not allowed to run this command.")
		}

		includeInactive := len(c.Args()) > 0 && strings.EqualFold(c.Args()[0], "all")
		agents, err := adminService.ListAgents(ctx, c.Sender().ID, includeInactive)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to list agents")
			return c.Send("Could not list agents, please try again later.")
		}
		if len(agents) == 0 {
			return c.Send("No agents registered.")
		}

		var response strings.Builder
		title := "Active agents"
		if includeInactive {
			title = "All agents"
		}
		response.WriteString(fmt.Sprintf("--- %s ---\n", title))
		for _, a := range agents {
			status := "inactive"
			if a.IsActive {
				status = "active"
			}
			response.WriteString(fmt.Sprintf("ID: %d, Telegram ID: %d, Name: %s %s, Status: %s\n",
				a.ID, a.TelegramID, a.Name, a.LastName.String, status))
		}
		return c.Send(response.String())
	})

	// /standings [critical] — completion-order report across agents.
	b.Handle("/standings", func(c telebot.Context) error {
		if c.Sender().ID != adminTelegramID {
			return c.Send("You are not allowed to run this command.")
		}
		track := cycle.TrackStandard
		if len(c.Args()) > 0 && strings.EqualFold(c.Args()[0], "critical") {
			track = cycle.TrackCritical
		}
		standings, err := batchSvc.CompletionOrder(ctx, track)
		if err != nil {
			baseLogger.WithError(err).Error("Failed to compute completion order")
			return c.Send("Could not compute the completion order.")
		}
		if len(standings) == 0 {
			return c.Send("No batches issued on this track yet.")
		}
		var sb strings.Builder
		sb.WriteString("Completion order:\n")
		for _, s := range standings {
			sb.WriteString(fmt.Sprintf("%d. %s\n", s.Position, s.Agent))
		}
		return c.Send(sb.String())
	})

	// /clear_read — bulk-delete read notification records.
	b.Handle("/clear_read", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/clear_read",
			"sender_id": c.Sender().ID,
		})
		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("You are not allowed to run this command.")
		}
		n, err := notifRepo.ClearRead(ctx)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to clear read notifications")
			return c.Send("Could not clear read reminders.")
		}
		handlerLogger.WithField("deleted", n).Info("Read notifications cleared")
		return c.Send(fmt.Sprintf("Deleted %d read reminders.", n))
	})
}
