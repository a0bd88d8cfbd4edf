package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/service/slack"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack/slackevents"
)

const (
	// emptyMentionText is used when a mention carries no text
	emptyMentionText = "Hi"

	learnCommand     = "learn"
	forgetCommand    = "forget"
	knowledgeCommand = "knowledge"
	relearnCommand   = "relearn"
	unlearnCommand   = "unlearn"

	// ownKnowledgeLimit bounds the entries listed by the knowledge command
	ownKnowledgeLimit = 20
)

// SlackUseCases binds Slack events to the orchestrator
type SlackUseCases struct {
	orchestrator *OrchestratorUseCase
	admin        *AdminUseCase
	slackService slack.Service
}

// NewSlackUseCases creates a new SlackUseCases instance
func NewSlackUseCases(orchestrator *OrchestratorUseCase, admin *AdminUseCase, slackService slack.Service) *SlackUseCases {
	return &SlackUseCases{
		orchestrator: orchestrator,
		admin:        admin,
		slackService: slackService,
	}
}

// inbound is the part of a Slack event the agent reacts to
type inbound struct {
	userID    string
	channelID string
	text      string
	threadTS  string
}

// HandleSlackEvent processes Slack Events API events. Mentions and direct
// messages are answered; everything else is ignored.
func (uc *SlackUseCases) HandleSlackEvent(ctx context.Context, event *slackevents.EventsAPIEvent) error {
	logger := logging.From(ctx)

	var in inbound
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" {
			return nil
		}
		in = inbound{
			userID:    ev.User,
			channelID: ev.Channel,
			text:      ev.Text,
			threadTS:  firstNonEmpty(ev.ThreadTimeStamp, ev.TimeStamp),
		}

	case *slackevents.MessageEvent:
		if ev.ChannelType != "im" || ev.SubType != "" || ev.BotID != "" {
			return nil
		}
		in = inbound{
			userID:    ev.User,
			channelID: ev.Channel,
			text:      ev.Text,
			threadTS:  ev.ThreadTimeStamp,
		}

	default:
		logger.Debug("ignoring slack event", "type", event.Type, "inner_type", event.InnerEvent.Type)
		return nil
	}

	botUserID, err := uc.slackService.GetBotUserID(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to get bot user ID")
	}
	if in.userID == "" || in.userID == botUserID {
		return nil
	}

	in.text = stripMention(in.text, botUserID)
	if in.text == "" {
		in.text = emptyMentionText
	}

	reply := uc.respond(ctx, in)

	if _, err := uc.slackService.PostMessage(ctx, in.channelID, in.threadTS, reply); err != nil {
		return goerr.Wrap(err, "failed to post reply",
			goerr.V(ChannelIDKey, in.channelID),
			goerr.V("user_id", in.userID))
	}
	return nil
}

func (uc *SlackUseCases) respond(ctx context.Context, in inbound) string {
	userName := in.userID
	if user, err := uc.slackService.GetUserInfo(ctx, in.userID); err != nil {
		logging.From(ctx).Warn("failed to resolve user name", "user_id", in.userID, "error", err.Error())
	} else if name := user.PreferredName(); name != "" {
		userName = name
	}

	command, args := splitCommand(in.text)
	switch command {
	case learnCommand:
		question, answer, ok := strings.Cut(args, "|")
		if !ok {
			return "Teach me like this: `learn <question> | <answer>`"
		}
		if _, err := uc.admin.Teach(ctx, question, answer, in.userID, userName); err != nil {
			logging.From(ctx).Warn("failed to learn", "user_id", in.userID, "error", err.Error())
			return "I couldn't keep that one. Try again later?"
		}
		return "Got it. I'll remember that."

	case forgetCommand:
		n := uc.admin.ClearChannel(ctx, in.channelID)
		if n == 0 {
			return "There was nothing on my mind here anyway."
		}
		return "Okay, I've let go of our recent conversation here."

	case knowledgeCommand:
		return uc.listOwnKnowledge(ctx, in.userID)

	case relearnCommand:
		id, rest, _ := strings.Cut(args, " ")
		question, answer, ok := strings.Cut(rest, "|")
		if id == "" || !ok {
			return "Correct me like this: `relearn <id> <question> | <answer>`"
		}
		_, err := uc.admin.UpdateOwnKnowledge(ctx, model.MemoryID(id), in.userID, question, answer)
		return knowledgeReply(ctx, err, "Updated. I'll remember it that way.")

	case unlearnCommand:
		if args == "" {
			return "Tell me which one: `unlearn <id>`"
		}
		err := uc.admin.DeleteOwnKnowledge(ctx, model.MemoryID(args), in.userID)
		return knowledgeReply(ctx, err, "Done. I've forgotten that one.")
	}

	return uc.orchestrator.ProcessTurn(ctx, Turn{
		Message:   in.text,
		UserID:    in.userID,
		UserName:  userName,
		ChannelID: in.channelID,
	})
}

func (uc *SlackUseCases) listOwnKnowledge(ctx context.Context, userID string) string {
	entries := uc.admin.ListKnowledge(ctx, ownKnowledgeLimit, userID)
	if len(entries) == 0 {
		return "You haven't taught me anything yet."
	}

	var sb strings.Builder
	sb.WriteString("Here is what you taught me:")
	for _, m := range entries {
		fmt.Fprintf(&sb, "\n`%s` %s | %s", m.ID, m.Question(), m.AgentText)
	}
	return sb.String()
}

func knowledgeReply(ctx context.Context, err error, ok string) string {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, ErrKnowledgeNotFound):
		return "I don't know anything by that id."
	case errors.Is(err, ErrKnowledgeNotOwned):
		return "Only the person who taught me that can change it."
	default:
		logging.From(ctx).Warn("failed to change learned knowledge", "error", err.Error())
		return "I couldn't change that one. Try again later?"
	}
}

// stripMention removes mentions of the bot and surrounding space
func stripMention(text, botUserID string) string {
	if botUserID != "" {
		text = strings.ReplaceAll(text, "<@"+botUserID+">", "")
	}
	return strings.TrimSpace(text)
}

// splitCommand returns the lower-cased first word when it is a chat command
func splitCommand(text string) (string, string) {
	head, rest, _ := strings.Cut(text, " ")
	switch strings.ToLower(head) {
	case learnCommand, forgetCommand, relearnCommand, unlearnCommand:
		return strings.ToLower(head), strings.TrimSpace(rest)
	case knowledgeCommand:
		// "knowledge is power" is conversation
		if strings.TrimSpace(rest) == "" {
			return knowledgeCommand, ""
		}
	}
	return "", text
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
