// Package relay drives an assistant conversation on a remote thread API on behalf
// of a chat widget: it creates threads, posts user messages, starts runs, waits for
// them, and returns the newest assistant reply.
package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/papercomputeco/threadrelay/pkg/poll"
)

// ThreadAPI is the subset of the remote thread API the relay depends on.
// It is satisfied by *threads.Client.
type ThreadAPI interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadID, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (*openai.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*openai.Run, error)
	ListMessages(ctx context.Context, threadID string, limit int, order string) ([]openai.Message, error)
}

// Result is the outcome of one exchange.
type Result struct {
	Reply    string
	ThreadID string
}

// Relay is stateless across calls: every operation is self-contained given the
// thread id supplied by the caller.
type Relay struct {
	config Config
	api    ThreadAPI
	logger *zap.Logger
}

// New creates a new Relay.
func New(config Config, api ThreadAPI, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Relay{
		config: config.withDefaults(),
		api:    api,
		logger: logger,
	}
}

// BeginConversation creates a new remote thread and returns its id.
func (r *Relay) BeginConversation(ctx context.Context) (string, error) {
	if err := r.config.Validate(); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.config.StartTimeout)
	defer cancel()

	threadID, err := r.api.CreateThread(callCtx)
	if err != nil {
		return "", fmt.Errorf("begin conversation: %w", err)
	}

	r.logger.Info("conversation started", zap.String("thread_id", threadID))
	return threadID, nil
}

// Exchange posts message to the thread, runs the assistant, and returns its reply.
//
// A run that is still pending after the poll budget, or that ends in any status
// other than completed, yields the configured fallback reply rather than an error.
// Remote failures abort the exchange at the step where they occur.
func (r *Relay) Exchange(ctx context.Context, threadID, message string) (*Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	if threadID == "" || strings.TrimSpace(message) == "" {
		return nil, ErrInvalidExchange
	}

	startTime := time.Now()

	if err := r.call(ctx, func(ctx context.Context) error {
		return r.api.AppendMessage(ctx, threadID, message)
	}); err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	var run *openai.Run
	if err := r.call(ctx, func(ctx context.Context) error {
		var err error
		run, err = r.api.CreateRun(ctx, threadID, r.config.AssistantID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	status, err := r.awaitRun(ctx, threadID, run)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	if status != openai.RunStatusCompleted {
		r.logger.Warn("run did not complete, returning fallback reply",
			zap.String("thread_id", threadID),
			zap.String("run_id", run.ID),
			zap.String("status", string(status)),
			zap.Duration("duration", time.Since(startTime)),
		)
		return &Result{Reply: r.config.FallbackReply, ThreadID: threadID}, nil
	}

	var msgs []openai.Message
	if err := r.call(ctx, func(ctx context.Context) error {
		var err error
		msgs, err = r.api.ListMessages(ctx, threadID, r.config.MessageLimit, r.config.MessageOrder)
		return err
	}); err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	reply := replyText(latestAssistant(msgs, r.config.MessageOrder), r.config.EmptyReply)

	r.logger.Info("exchange completed",
		zap.String("thread_id", threadID),
		zap.String("run_id", run.ID),
		zap.String("reply_preview", truncate(reply, 100)),
		zap.Duration("duration", time.Since(startTime)),
	)

	return &Result{Reply: reply, ThreadID: threadID}, nil
}

// awaitRun polls the run while it is queued or in progress and returns the last
// status observed.
func (r *Relay) awaitRun(ctx context.Context, threadID string, run *openai.Run) (openai.RunStatus, error) {
	status := run.Status
	if !pending(status) {
		return status, nil
	}

	polls := 0
	_, err := poll.Until(ctx, r.config.Poll, func(ctx context.Context) (bool, error) {
		polls++
		err := r.call(ctx, func(ctx context.Context) error {
			current, err := r.api.GetRun(ctx, threadID, run.ID)
			if err != nil {
				return err
			}
			status = current.Status
			return nil
		})
		if err != nil {
			return false, err
		}

		r.logger.Debug("polled run",
			zap.String("run_id", run.ID),
			zap.String("status", string(status)),
			zap.Int("poll", polls),
		)
		return !pending(status), nil
	})

	return status, err
}

// call runs fn with a context bounded by the per-call chat timeout.
func (r *Relay) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, r.config.ChatTimeout)
	defer cancel()

	return fn(callCtx)
}

func pending(status openai.RunStatus) bool {
	return status == openai.RunStatusQueued || status == openai.RunStatusInProgress
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
