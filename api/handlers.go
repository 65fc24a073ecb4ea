package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/threadrelay/pkg/chat"
	"github.com/papercomputeco/threadrelay/pkg/threads"
	"github.com/papercomputeco/threadrelay/relay"
)

// handleStart begins a new conversation and returns its thread id.
func (s *Server) handleStart(c *fiber.Ctx) error {
	threadID, err := s.relay.BeginConversation(c.UserContext())
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(chat.StartResponse{ThreadID: threadID})
}

// handleChat relays one user message and returns the assistant reply.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chat.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Warn("failed to parse request", zap.String("request_id", requestID(c)), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Detail: "invalid request body"})
	}
	if req.ThreadID == "" || strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Detail: relay.ErrInvalidExchange.Error()})
	}

	s.logger.Debug("received chat request",
		zap.String("request_id", requestID(c)),
		zap.String("thread_id", req.ThreadID),
		zap.Int("message_length", len(req.Message)),
	)

	result, err := s.relay.Exchange(c.UserContext(), req.ThreadID, req.Message)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(chat.Response{Reply: result.Reply, ThreadID: result.ThreadID})
}

// writeError maps relay failures onto HTTP statuses: missing configuration is a
// 500, anything the provider rejected or failed to answer is a 502.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	var (
		cfgErr *relay.ConfigurationError
		upErr  *threads.UpstreamError
	)

	switch {
	case errors.As(err, &cfgErr):
		s.logger.Error("relay not configured", zap.Strings("missing", cfgErr.Missing))
		return c.Status(fiber.StatusInternalServerError).JSON(chat.ErrorResponse{Detail: cfgErr.Error()})

	case errors.As(err, &upErr):
		s.logger.Error("upstream request failed",
			zap.String("request_id", requestID(c)),
			zap.String("op", upErr.Op),
			zap.Int("status", upErr.StatusCode),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadGateway).JSON(chat.ErrorResponse{
			Detail: fmt.Sprintf("upstream error (%s): %s", upErr.Op, upErr.Detail()),
		})

	case errors.Is(err, relay.ErrInvalidExchange):
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Detail: err.Error()})

	default:
		s.logger.Error("relay failed", zap.String("request_id", requestID(c)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(chat.ErrorResponse{Detail: "internal error"})
	}
}
