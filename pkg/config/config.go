// Package config loads relay configuration from a TOML file, a .env file, the process
// environment, and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/threadrelay/api"
	"github.com/papercomputeco/threadrelay/pkg/logger"
	"github.com/papercomputeco/threadrelay/pkg/poll"
	"github.com/papercomputeco/threadrelay/pkg/threads"
	"github.com/papercomputeco/threadrelay/relay"
)

// Keys double as flag names.
const (
	KeyAPIKey         = "api-key"
	KeyAssistantID    = "assistant-id"
	KeyAllowedOrigins = "allowed-origins"
	KeyListen         = "listen"
	KeyRoutePrefix    = "route-prefix"
	KeyBaseURL        = "base-url"
	KeyExtraHeaders   = "extra-headers"
	KeyMessageOrder   = "message-order"
	KeyPollAttempts   = "poll-attempts"
	KeyPollInterval   = "poll-interval"
	KeyFallbackReply  = "fallback-reply"
	KeyEmptyReply     = "empty-reply"
	KeyDebug          = "debug"
	KeyLogFormat      = "log-format"
)

// envNames maps keys to the environment variables that set them.
var envNames = map[string]string{
	KeyAPIKey:         "OPENAI_API_KEY",
	KeyAssistantID:    "ASSISTANT_ID",
	KeyAllowedOrigins: "ALLOWED_ORIGINS",
	KeyListen:         "LISTEN_ADDR",
	KeyRoutePrefix:    "ROUTE_PREFIX",
	KeyBaseURL:        "OPENAI_BASE_URL",
	KeyExtraHeaders:   "OPENAI_EXTRA_HEADERS",
	KeyMessageOrder:   "MESSAGE_ORDER",
	KeyPollAttempts:   "POLL_ATTEMPTS",
	KeyPollInterval:   "POLL_INTERVAL",
	KeyFallbackReply:  "FALLBACK_REPLY",
	KeyEmptyReply:     "EMPTY_REPLY",
	KeyDebug:          "DEBUG",
	KeyLogFormat:      "LOG_FORMAT",
}

const defaultListenAddr = ":8080"

// Config is the complete relay configuration.
type Config struct {
	APIKey         string
	AssistantID    string
	AllowedOrigins []string
	ListenAddr     string
	RoutePrefix    string
	BaseURL        string
	ExtraHeaders   map[string]string
	MessageOrder   string
	PollAttempts   int
	PollInterval   time.Duration
	FallbackReply  string
	EmptyReply     string
	Debug          bool
	LogFormat      string
}

// fileConfig is the on-disk TOML layout.
type fileConfig struct {
	APIKey         string            `toml:"api_key"`
	AssistantID    string            `toml:"assistant_id"`
	AllowedOrigins []string          `toml:"allowed_origins"`
	ListenAddr     string            `toml:"listen_addr"`
	RoutePrefix    string            `toml:"route_prefix"`
	BaseURL        string            `toml:"base_url"`
	ExtraHeaders   map[string]string `toml:"extra_headers"`
	MessageOrder   string            `toml:"message_order"`
	PollAttempts   int               `toml:"poll_attempts"`
	PollInterval   string            `toml:"poll_interval"`
	FallbackReply  string            `toml:"fallback_reply"`
	EmptyReply     string            `toml:"empty_reply"`
	Debug          bool              `toml:"debug"`
	LogFormat      string            `toml:"log_format"`
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an optional TOML file. Empty skips it.
	ConfigFile string

	// EnvFile is an optional dotenv file. A missing file is ignored.
	EnvFile string

	// Flags registered with RegisterFlags. Only flags set explicitly override other sources.
	Flags *pflag.FlagSet
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyAPIKey, "", "Provider API key (env OPENAI_API_KEY)")
	fs.String(KeyAssistantID, "", "Assistant bound to every run (env ASSISTANT_ID)")
	fs.String(KeyAllowedOrigins, "*", "Comma-separated CORS origins, * for any (env ALLOWED_ORIGINS)")
	fs.String(KeyListen, defaultListenAddr, "Address to listen on (env LISTEN_ADDR, or PORT)")
	fs.String(KeyRoutePrefix, "", "Path prefix for the start and chat routes, e.g. /pv (env ROUTE_PREFIX)")
	fs.String(KeyBaseURL, threads.DefaultBaseURL, "Thread API base URL (env OPENAI_BASE_URL)")
	fs.String(KeyExtraHeaders, "", "Extra provider headers as K=V,K=V, e.g. OpenAI-Beta=assistants=v2 (env OPENAI_EXTRA_HEADERS)")
	fs.String(KeyMessageOrder, "", "Reply fetch order: asc, desc, or empty for provider default (env MESSAGE_ORDER)")
	fs.Int(KeyPollAttempts, relay.DefaultPollAttempts, "Maximum run status checks (env POLL_ATTEMPTS)")
	fs.Duration(KeyPollInterval, relay.DefaultPollInterval, "Wait before each run status check (env POLL_INTERVAL)")
	fs.String(KeyFallbackReply, relay.DefaultFallbackReply, "Reply used when a run does not complete in time (env FALLBACK_REPLY)")
	fs.String(KeyEmptyReply, relay.DefaultEmptyReply, "Reply used when the assistant message has no text (env EMPTY_REPLY)")
	fs.Bool(KeyDebug, false, "Enable debug logging (env DEBUG)")
	fs.String(KeyLogFormat, logger.FormatConsole, "Log format: console or json (env LOG_FORMAT)")
}

// Load merges defaults, the TOML file, the environment, and explicitly set flags.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		if err := applyFile(v, opts.ConfigFile); err != nil {
			return nil, err
		}
	}

	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("could not bind env %s: %w", env, err)
		}
	}

	if opts.Flags != nil {
		if err := v.BindPFlags(opts.Flags); err != nil {
			return nil, fmt.Errorf("could not bind flags: %w", err)
		}
	}

	headers, err := ParseHeaders(v.GetString(KeyExtraHeaders))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIKey:         strings.TrimSpace(v.GetString(KeyAPIKey)),
		AssistantID:    strings.TrimSpace(v.GetString(KeyAssistantID)),
		AllowedOrigins: splitList(v.GetString(KeyAllowedOrigins)),
		ListenAddr:     listenAddr(v, opts.Flags),
		RoutePrefix:    v.GetString(KeyRoutePrefix),
		BaseURL:        v.GetString(KeyBaseURL),
		ExtraHeaders:   headers,
		MessageOrder:   strings.ToLower(strings.TrimSpace(v.GetString(KeyMessageOrder))),
		PollAttempts:   v.GetInt(KeyPollAttempts),
		PollInterval:   v.GetDuration(KeyPollInterval),
		FallbackReply:  v.GetString(KeyFallbackReply),
		EmptyReply:     v.GetString(KeyEmptyReply),
		Debug:          v.GetBool(KeyDebug),
		LogFormat:      v.GetString(KeyLogFormat),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks structural values. Missing credentials are reported by the relay
// at call time instead, so the server can still start and answer health checks.
func (c *Config) Validate() error {
	switch c.MessageOrder {
	case "", threads.OrderAsc, threads.OrderDesc:
	default:
		return fmt.Errorf("invalid message order %q: expected asc, desc, or empty", c.MessageOrder)
	}

	if c.PollAttempts <= 0 {
		return fmt.Errorf("poll attempts must be positive, got %d", c.PollAttempts)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}

	switch c.LogFormat {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q: expected console or json", c.LogFormat)
	}

	return nil
}

// Relay returns the chat relay configuration.
func (c *Config) Relay() relay.Config {
	return relay.Config{
		APIKey:        c.APIKey,
		AssistantID:   c.AssistantID,
		MessageOrder:  c.MessageOrder,
		Poll:          poll.Policy{Attempts: c.PollAttempts, Interval: c.PollInterval},
		FallbackReply: c.FallbackReply,
		EmptyReply:    c.EmptyReply,
	}
}

// Threads returns the thread API client options.
func (c *Config) Threads(log *zap.Logger) threads.Options {
	return threads.Options{
		BaseURL: c.BaseURL,
		APIKey:  c.APIKey,
		Headers: c.ExtraHeaders,
		Logger:  log,
	}
}

// API returns the HTTP server configuration.
func (c *Config) API() api.Config {
	return api.Config{
		ListenAddr:     c.ListenAddr,
		RoutePrefix:    c.RoutePrefix,
		AllowedOrigins: c.AllowedOrigins,
	}
}

// ParseHeaders parses "K=V,K=V". The first '=' separates name from value, so values
// may themselves contain '='.
func ParseHeaders(s string) (map[string]string, error) {
	headers := map[string]string{}
	for _, pair := range splitList(s) {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected Name=Value", pair)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAllowedOrigins, "*")
	v.SetDefault(KeyListen, defaultListenAddr)
	v.SetDefault(KeyBaseURL, threads.DefaultBaseURL)
	v.SetDefault(KeyPollAttempts, relay.DefaultPollAttempts)
	v.SetDefault(KeyPollInterval, relay.DefaultPollInterval)
	v.SetDefault(KeyFallbackReply, relay.DefaultFallbackReply)
	v.SetDefault(KeyEmptyReply, relay.DefaultEmptyReply)
	v.SetDefault(KeyLogFormat, logger.FormatConsole)
}

// applyFile decodes the TOML file and layers its values over the built-in defaults.
func applyFile(v *viper.Viper, path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("could not read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys in config file %s: %v", path, undecoded)
	}

	setString := func(key, value string) {
		if value != "" {
			v.SetDefault(key, value)
		}
	}

	setString(KeyAPIKey, fc.APIKey)
	setString(KeyAssistantID, fc.AssistantID)
	setString(KeyAllowedOrigins, strings.Join(fc.AllowedOrigins, ","))
	setString(KeyListen, fc.ListenAddr)
	setString(KeyRoutePrefix, fc.RoutePrefix)
	setString(KeyBaseURL, fc.BaseURL)
	setString(KeyMessageOrder, fc.MessageOrder)
	setString(KeyFallbackReply, fc.FallbackReply)
	setString(KeyEmptyReply, fc.EmptyReply)
	setString(KeyLogFormat, fc.LogFormat)

	if len(fc.ExtraHeaders) > 0 {
		pairs := make([]string, 0, len(fc.ExtraHeaders))
		for name, value := range fc.ExtraHeaders {
			pairs = append(pairs, name+"="+value)
		}
		v.SetDefault(KeyExtraHeaders, strings.Join(pairs, ","))
	}
	if fc.PollAttempts != 0 {
		v.SetDefault(KeyPollAttempts, fc.PollAttempts)
	}
	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval in %s: %w", path, err)
		}
		v.SetDefault(KeyPollInterval, d)
	}
	if fc.Debug {
		v.SetDefault(KeyDebug, true)
	}

	return nil
}

// listenAddr honours PORT as used by most PaaS hosts when no explicit address is set.
func listenAddr(v *viper.Viper, flags *pflag.FlagSet) string {
	explicit := os.Getenv(envNames[KeyListen]) != "" || (flags != nil && flags.Changed(KeyListen))
	if port := os.Getenv("PORT"); port != "" && !explicit && v.GetString(KeyListen) == defaultListenAddr {
		return ":" + port
	}
	return v.GetString(KeyListen)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
