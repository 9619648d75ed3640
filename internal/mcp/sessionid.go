package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/lspgate/internal/session"
)

// sessionIDManager hands every client the broker's singleton session id.
type sessionIDManager struct {
	broker *session.Broker
	logger *slog.Logger
}

// NewSessionIDManager adapts broker to the streamable HTTP transport.
func NewSessionIDManager(broker *session.Broker, logger *slog.Logger) server.SessionIdManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &sessionIDManager{broker: broker, logger: logger}
}

// Generate initializes the session on first use and returns its id.
func (m *sessionIDManager) Generate() string {
	s, created := m.broker.Initialize()
	if created {
		m.logger.Info("session initialized", "session_id", s.ID)
	} else {
		m.logger.Debug("session already initialized", "session_id", s.ID)
	}
	return s.ID
}

// Validate accepts any id. Stale ids from a previous process are resolved
// to the live session by the tool middleware.
func (m *sessionIDManager) Validate(sessionID string) (isTerminated bool, err error) {
	return false, nil
}

// Terminate refuses: the session lives as long as the process.
func (m *sessionIDManager) Terminate(sessionID string) (isNotAllowed bool, err error) {
	return true, nil
}
