// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the roster stream.
const (
	BadSubprotocolError    = 3000 // Client connected with an unsupported subprotocol.
	RosterUnavailableError = 3001 // The pub/sub backend could not be subscribed to.
)
