// Package api exposes the chat relay over HTTP for browser widgets.
package api

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/threadrelay/relay"
)

const requestIDKey = "requestid"

// Relay is the conversation backend behind the HTTP routes. It is satisfied by *relay.Relay.
type Relay interface {
	BeginConversation(ctx context.Context) (string, error)
	Exchange(ctx context.Context, threadID, message string) (*relay.Result, error)
}

// Server serves the start and chat routes.
// It keeps no conversation state; every request is handled independently.
type Server struct {
	config Config
	relay  Relay
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new Server and registers its routes.
func NewServer(config Config, r Relay, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	origins, err := corsOrigins(config.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		relay:  r,
		logger: logger,
		app:    app,
	}

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator:  uuid.NewString,
		ContextKey: requestIDKey,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowCredentials: false,
	}))
	app.Use(s.logRequest)

	prefix := normalizePrefix(config.RoutePrefix)
	app.Get(prefix+"/start", s.handleStart)
	app.Post(prefix+"/chat", s.handleChat)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	return s, nil
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting relay server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("prefix", normalizePrefix(s.config.RoutePrefix)),
	)

	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting relay server",
		zap.String("listen", ln.Addr().String()),
		zap.String("prefix", normalizePrefix(s.config.RoutePrefix)),
	)

	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ShutdownWithContext is Shutdown bounded by ctx.
func (s *Server) ShutdownWithContext(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// logRequest logs one line per request after the handler chain has run.
func (s *Server) logRequest(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	s.logger.Info("request handled",
		zap.String("request_id", requestID(c)),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)

	return err
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}

// corsOrigins builds the CORS allow list. Origins must be scheme://host[:port].
func corsOrigins(origins []string) (string, error) {
	cleaned := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return "*", nil
		}
		if o == "" {
			continue
		}

		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return "", fmt.Errorf("invalid allowed origin %q", o)
		}
		cleaned = append(cleaned, strings.TrimSuffix(o, "/"))
	}
	if len(cleaned) == 0 {
		return "*", nil
	}
	return strings.Join(cleaned, ","), nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}
