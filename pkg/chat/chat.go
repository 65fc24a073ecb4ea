// Package chat holds the request and response shapes of the relay's public HTTP API,
// shared by the server and the CLI client commands.
package chat

// StartResponse is returned when a conversation begins.
type StartResponse struct {
	ThreadID string `json:"thread_id"`
}

// Request is a chat exchange request.
type Request struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// Response is a chat exchange result. ThreadID always echoes the request.
type Response struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"thread_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
