package telegram

import (
	"context"
	"fmt"
	"strings"

	"visa_case_bot/internal/domain/agent"
	"visa_case_bot/internal/infra/config"
	idb "visa_case_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	cfg *config.AppConfig, // For AdminTelegramID
	agentRepo agent.Repository,
	baseLogger *logrus.Entry,
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == cfg.AdminTelegramID {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello, administrator %s! Use /help for the command list.", c.Sender().FirstName))
		}

		a, err := agentRepo.GetByTelegramID(ctx, senderID)
		if err == nil {
			if a.IsActive {
				logCtx.WithField("agent_id", a.ID).Info("User identified as active agent")
				return c.Send(fmt.Sprintf("Hello, %s! Use /nextbatch to get your next batch of cases and /help for all commands.", a.Name))
			}
			logCtx.WithField("agent_id", a.ID).Info("User identified as inactive agent")
			return c.Send("Your agent account is inactive. Contact an administrator.")
		} else if err != idb.ErrAgentNotFound {
			logCtx.WithError(err).Error("Error checking agent status for /start command")
			return c.Send("Could not verify your account, please try again later.")
		}

		logCtx.Info("User is unknown")
		return c.Send("Hello! This is the case workload bot. If you are a CSS agent, ask an administrator to register you.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID == cfg.AdminTelegramID {
			logCtx.Info("User identified as Admin, sending admin help.")
			var helpText strings.Builder
			helpText.WriteString("Administrator commands:\n\n")
			helpText.WriteString("`/add_agent <TelegramID> <Name> [LastName]`\n - Register a new CSS agent.\n\n")
			helpText.WriteString("`/remove_agent <TelegramID>`\n - Deactivate an agent.\n\n")
			helpText.WriteString("`/list_agents [all]`\n - Show registered agents.\n\n")
			helpText.WriteString("`/standings [critical]`\n - Completion-order report per track.\n\n")
			helpText.WriteString("`/clear_read`\n - Delete all read reminders.\n\n")
			helpText.WriteString("`/help`\n - Show this message.")
			return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}

		a, err := agentRepo.GetByTelegramID(ctx, senderID)
		if err == nil {
			if a.IsActive {
				logCtx.WithField("agent_id", a.ID).Info("User identified as active agent, sending agent help.")
				var helpText strings.Builder
				helpText.WriteString("Agent commands:\n\n")
				helpText.WriteString("`/nextbatch`\n - Get your next batch of cases (every case of the previous batch needs a comment from you today first).\n\n")
				helpText.WriteString("`/redflag`\n - Get your next critical-case batch (needs today's comments plus a contact medium per case).\n\n")
				helpText.WriteString("`/mybatch [critical]`\n - Show your current batch.\n\n")
				helpText.WriteString("`/medium <CaseNo> <medium>`\n - Record the contact medium for a critical-batch case.\n\n")
				helpText.WriteString("`/done <id>` / `/resolve <id>`\n - Close a commitment / critical highlight.\n\n")
				helpText.WriteString("`/reminders` and `/read <id>`\n - Review and acknowledge deadline reminders.")
				return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
			}
			logCtx.WithField("agent_id", a.ID).Info("User identified as inactive agent, sending restricted help.")
			return c.Send("Your agent account is inactive. Contact an administrator.")
		} else if err != idb.ErrAgentNotFound {
			logCtx.WithError(err).Error("Error checking agent status for /help command")
			return c.Send("Could not verify your account, please try again later.")
		}

		logCtx.Info("User is unknown, sending restricted help.")
		return c.Send("No commands are available for you. If you are a CSS agent, ask an administrator to register you.")
	})
}
