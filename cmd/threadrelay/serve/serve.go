package servecmder

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/threadrelay/api"
	"github.com/papercomputeco/threadrelay/pkg/config"
	"github.com/papercomputeco/threadrelay/pkg/logger"
	"github.com/papercomputeco/threadrelay/pkg/threads"
	"github.com/papercomputeco/threadrelay/relay"
)

const serveLongDesc string = `Run the relay HTTP server.

Configuration is read from built-in defaults, an optional TOML file,
a .env file, the environment, and flags, later sources winning.

Examples:
  threadrelay serve
  threadrelay serve --config relay.toml --route-prefix /pv
  OPENAI_API_KEY=sk-... ASSISTANT_ID=asst_... threadrelay serve --listen :3000`

const serveShortDesc string = "Run the relay server"

// shutdownTimeout covers an exchange that is still polling when shutdown begins.
const shutdownTimeout = 90 * time.Second

type serveCommander struct {
	configFile string
	envFile    string
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configFile, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&cmder.envFile, "env-file", ".env", "Path to a dotenv file (ignored if missing)")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: c.configFile,
		EnvFile:    c.envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	log := logger.NewLogger(cfg.Debug, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	log.Info("threadrelay starting",
		zap.String("listen", cfg.ListenAddr),
		zap.String("route_prefix", cfg.RoutePrefix),
		zap.String("base_url", cfg.BaseURL),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Int("extra_headers", len(cfg.ExtraHeaders)),
		zap.Bool("debug", cfg.Debug),
	)

	if err := cfg.Relay().Validate(); err != nil {
		log.Warn("relay is not configured; start and chat will fail until it is", zap.Error(err))
	}

	srv, err := newServer(cfg, log)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", cfg.ListenAddr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, srv, ln, log)
}

func newServer(cfg *config.Config, log *zap.Logger) (*api.Server, error) {
	client := threads.New(cfg.Threads(log))
	r := relay.New(cfg.Relay(), client, log)

	srv, err := api.NewServer(cfg.API(), r, log)
	if err != nil {
		return nil, fmt.Errorf("could not create server: %w", err)
	}
	return srv, nil
}

// serve runs srv on ln until ctx is done or the server fails, then shuts it down.
func serve(ctx context.Context, srv *api.Server, ln net.Listener, log *zap.Logger) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return srv.RunWithListener(ln)
	})

	eg.Go(func() error {
		<-egCtx.Done()
		log.Info("shutting down relay server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error("server shutdown error", zap.Error(err))
			return err
		}

		log.Info("server shutdown complete")
		return nil
	})

	return eg.Wait()
}
