package api

// Config is the HTTP API server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// RoutePrefix is prepended to the chat routes (e.g., "/pv" serves /pv/start and /pv/chat).
	// Empty serves /start and /chat.
	RoutePrefix string

	// AllowedOrigins lists origins allowed by CORS. Empty or containing "*" allows any origin.
	AllowedOrigins []string
}
