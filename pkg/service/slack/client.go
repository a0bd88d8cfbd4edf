package slack

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

const (
	// DefaultCacheTTL is the default TTL for the user info cache
	DefaultCacheTTL = 10 * time.Minute

	// MaxMessageBytes bounds one posted message. Slack truncates text
	// beyond 40k characters and renders long messages poorly well before.
	MaxMessageBytes = 3000
)

// cacheEntry holds a cached user with expiration
type cacheEntry struct {
	user      *User
	expiresAt time.Time
}

// client implements Service interface
type client struct {
	api      *slack.Client
	apiURL   string
	cacheTTL time.Duration

	mu        sync.RWMutex
	cache     map[string]cacheEntry
	botUserID string
}

// Option is a functional option for client configuration
type Option func(*client)

// WithCacheTTL sets the TTL for the user info cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *client) {
		c.cacheTTL = ttl
	}
}

// WithAPIURL points the client at another API endpoint
func WithAPIURL(url string) Option {
	return func(c *client) {
		c.apiURL = url
	}
}

// New creates a new Slack service with the provided bot token
func New(token string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	c := &client{
		cacheTTL: DefaultCacheTTL,
		cache:    make(map[string]cacheEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	var apiOpts []slack.Option
	if c.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(c.apiURL))
	}
	c.api = slack.New(token, apiOpts...)

	return c, nil
}

// GetUserInfo retrieves user information for the given user ID
func (c *client) GetUserInfo(ctx context.Context, userID string) (*User, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.cache[userID]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.user, nil
	}

	info, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user info", goerr.V("user_id", userID))
	}

	user := &User{
		ID:          info.ID,
		Name:        info.Name,
		RealName:    info.RealName,
		DisplayName: info.Profile.DisplayName,
		IsBot:       info.IsBot,
	}

	c.mu.Lock()
	c.cache[userID] = cacheEntry{user: user, expiresAt: now.Add(c.cacheTTL)}
	c.mu.Unlock()

	return user, nil
}

// GetBotUserID returns the bot's own user ID
func (c *client) GetBotUserID(ctx context.Context) (string, error) {
	c.mu.RLock()
	id := c.botUserID
	c.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to call auth.test")
	}

	c.mu.Lock()
	c.botUserID = resp.UserID
	c.mu.Unlock()

	return resp.UserID, nil
}

// PostMessage posts text, split into chunks of at most MaxMessageBytes
func (c *client) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	var firstTS string
	for i, chunk := range SplitMessage(text, MaxMessageBytes) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if threadTS != "" {
			opts = append(opts, slack.MsgOptionTS(threadTS))
		}

		_, ts, err := c.api.PostMessageContext(ctx, channelID, opts...)
		if err != nil {
			return firstTS, goerr.Wrap(err, "failed to post message",
				goerr.V("channel_id", channelID),
				goerr.V("chunk", i))
		}
		if firstTS == "" {
			firstTS = ts
		}
	}
	return firstTS, nil
}

// SplitMessage splits text into chunks of at most maxBytes, preferring line
// breaks, then spaces, and never cutting a UTF-8 sequence.
func SplitMessage(text string, maxBytes int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	for len(text) > maxBytes {
		cut := truncateToMaxBytes(text, maxBytes)
		if i := strings.LastIndex(cut, "\n"); i > 0 {
			cut = cut[:i]
		} else if i := strings.LastIndex(cut, " "); i > 0 {
			cut = cut[:i]
		}

		chunks = append(chunks, strings.TrimSpace(cut))
		text = strings.TrimSpace(text[len(cut):])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// truncateToMaxBytes returns the longest prefix of s within maxBytes that
// ends on a rune boundary
func truncateToMaxBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
