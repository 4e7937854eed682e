package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"notemv-server/internal/config"

	"github.com/rs/zerolog"
)

var ErrTooManyConnections = errors.New("too many connections")

type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	maxConnPerUser int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	messageHandler MessageHandler
	logger         zerolog.Logger
}

// MessageHandler serves client frames. Frames of one client are handled in
// order on that client's read goroutine; a returned error is reported back to
// the client as an error frame.
type MessageHandler interface {
	HandleWebSocketMessage(ctx context.Context, client *Client, msg *Message) error
}

func NewManager(cfg config.WebSocketConfig, logger zerolog.Logger) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		maxConnPerUser: cfg.MaxConnPerUser,
		maxMessageSize: cfg.MaxMessageSize,
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingPeriod:     cfg.PingPeriod,
		logger:         logger.With().Str("component", "websocket").Logger(),
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) Register(client *Client) error {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	userID := client.User.ID
	if m.userIndex[userID] == nil {
		m.userIndex[userID] = make(map[string]bool)
	}

	if m.maxConnPerUser > 0 && len(m.userIndex[userID]) >= m.maxConnPerUser {
		m.logger.Warn().Str("user_id", userID).Msg("max connections reached")
		return ErrTooManyConnections
	}

	m.clients[client.ID] = client
	m.userIndex[userID][client.ID] = true

	m.logger.Info().Str("client_id", client.ID).Str("user_id", userID).Msg("client registered")
	return nil
}

func (m *Manager) Unregister(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.userIndex[client.User.ID], client.ID)

		if len(m.userIndex[client.User.ID]) == 0 {
			delete(m.userIndex, client.User.ID)
		}

		client.closeSend()
		m.logger.Info().Str("client_id", client.ID).Msg("client unregistered")
	}
}

func (m *Manager) dispatch(client *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		client.logger.Warn().Err(err).Msg("malformed frame")
		client.SendError("", errors.New("malformed message"))
		return
	}

	if m.messageHandler == nil {
		return
	}
	if err := m.messageHandler.HandleWebSocketMessage(client.Context(), client, &msg); err != nil {
		client.logger.Debug().Err(err).Str("type", string(msg.Type)).Msg("message rejected")
		client.SendError(msg.Type, err)
	}
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if clients, exists := m.userIndex[userID]; exists {
		return len(clients)
	}
	return 0
}

// Shutdown ends every connected client. Open sessions flush and take their
// on-exit snapshots before the connections are dropped.
func (m *Manager) Shutdown(ctx context.Context) {
	m.clientsMutex.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clientsMutex.RUnlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.Release(ctx)
			if c.Conn != nil {
				c.Conn.Close()
			}
		}(c)
	}
	wg.Wait()
	m.logger.Info().Int("clients", len(clients)).Msg("websocket clients released")
}
