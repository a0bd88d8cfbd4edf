package slack

import (
	"context"
)

// Service provides the Slack API operations used by the chat binding
type Service interface {
	// GetUserInfo retrieves user information for the given user ID (with caching)
	GetUserInfo(ctx context.Context, userID string) (*User, error)

	// GetBotUserID returns the user ID of the bot itself. The result is cached
	// for the lifetime of the service instance.
	GetBotUserID(ctx context.Context) (string, error)

	// PostMessage posts text to a channel, in the thread of threadTS when it
	// is not empty. Long text is split into several messages. Returns the
	// timestamp of the first message.
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)
}

// User represents a Slack user
type User struct {
	ID          string
	Name        string
	RealName    string
	DisplayName string
	IsBot       bool
}

// PreferredName returns the name to address the user with
func (u *User) PreferredName() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.RealName != "":
		return u.RealName
	default:
		return u.Name
	}
}
