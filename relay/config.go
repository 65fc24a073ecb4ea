package relay

import (
	"time"

	"github.com/papercomputeco/threadrelay/pkg/poll"
)

// Defaults for the run lifecycle.
const (
	DefaultPollAttempts  = 60
	DefaultPollInterval  = 900 * time.Millisecond
	DefaultMessageLimit  = 10
	DefaultStartTimeout  = 30 * time.Second
	DefaultChatTimeout   = 60 * time.Second
	DefaultFallbackReply = "Processing is taking longer than expected, please try again shortly."
	DefaultEmptyReply    = "no response"
)

// Config is the chat relay configuration.
type Config struct {
	// APIKey is the provider credential. Required.
	APIKey string

	// AssistantID is the assistant bound to every run. Required.
	AssistantID string

	// MessageOrder is the order requested when reading replies: "asc", "desc",
	// or empty for the provider default.
	MessageOrder string

	// MessageLimit is the page size used when reading replies.
	MessageLimit int

	// Poll bounds the wait for a run to leave queued/in_progress.
	Poll poll.Policy

	// StartTimeout bounds the create-thread call.
	StartTimeout time.Duration

	// ChatTimeout bounds each remote call made during an exchange.
	ChatTimeout time.Duration

	// FallbackReply is returned when a run does not complete within the poll budget.
	FallbackReply string

	// EmptyReply is returned when the newest assistant message has no text.
	EmptyReply string
}

// withDefaults fills zero values. Credentials are left alone so that a missing
// key surfaces as a ConfigurationError at call time.
func (c Config) withDefaults() Config {
	if c.MessageLimit <= 0 {
		c.MessageLimit = DefaultMessageLimit
	}
	if c.Poll.Attempts <= 0 {
		c.Poll.Attempts = DefaultPollAttempts
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = DefaultPollInterval
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = DefaultChatTimeout
	}
	if c.FallbackReply == "" {
		c.FallbackReply = DefaultFallbackReply
	}
	if c.EmptyReply == "" {
		c.EmptyReply = DefaultEmptyReply
	}
	return c
}

// Validate reports a ConfigurationError if credentials are missing.
func (c Config) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.AssistantID == "" {
		missing = append(missing, "ASSISTANT_ID")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}
