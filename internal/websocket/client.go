package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/session"
	"notemv-server/internal/store"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBufferSize = 256
	releaseTimeout = 10 * time.Second
)

// Client is one websocket connection. It owns the editing sessions and watch
// subscriptions opened through it and ends all of them when it goes away.
type Client struct {
	ID      string
	User    domain.Identity
	Conn    *websocket.Conn
	Manager *Manager
	Send    chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu         sync.Mutex
	released   bool
	sendClosed bool
	sessions   map[string]*session.Session
	watches    map[string]store.Subscription
}

func NewClient(id string, user domain.Identity, conn *websocket.Conn, manager *Manager) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:       id,
		User:     user,
		Conn:     conn,
		Manager:  manager,
		Send:     make(chan []byte, sendBufferSize),
		ctx:      ctx,
		cancel:   cancel,
		logger:   manager.logger.With().Str("client_id", id).Str("user_id", user.ID).Logger(),
		sessions: make(map[string]*session.Session),
		watches:  make(map[string]store.Subscription),
	}
}

// Context is cancelled once the connection has been released.
func (c *Client) Context() context.Context { return c.ctx }

func (c *Client) Logger() *zerolog.Logger { return &c.logger }

// SendMessage queues a frame for the write pump. A client that cannot keep
// up is disconnected rather than allowed to stall its sessions.
func (c *Client) SendMessage(msgType MessageType, payload interface{}) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return nil
	}
	select {
	case c.Send <- data:
	default:
		c.logger.Warn().Msg("send buffer full, closing connection")
		if c.Conn != nil {
			go c.Conn.Close()
		}
	}
	return nil
}

func (c *Client) SendError(request MessageType, err error) {
	if sendErr := c.SendMessage(TypeError, &ErrorPayload{Message: err.Error(), Request: request}); sendErr != nil {
		c.logger.Error().Err(sendErr).Msg("failed to send error frame")
	}
}

func (c *Client) Session(noteID string) (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[noteID]
	return sess, ok
}

// AddSession stores sess unless the client already has the note open or has
// been released. The caller must close sess when it returns false.
func (c *Client) AddSession(sess *session.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return false
	}
	if _, ok := c.sessions[sess.NoteID()]; ok {
		return false
	}
	c.sessions[sess.NoteID()] = sess
	return true
}

// TakeSession removes and returns the session for noteID.
func (c *Client) TakeSession(noteID string) (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[noteID]
	if ok {
		delete(c.sessions, noteID)
	}
	return sess, ok
}

// DropSession forgets sess if it is still the one registered for its note.
func (c *Client) DropSession(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[sess.NoteID()] == sess {
		delete(c.sessions, sess.NoteID())
	}
}

// Watch stores sub under key, closing whatever was there before.
func (c *Client) Watch(key string, sub store.Subscription) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		sub.Close()
		return
	}
	old := c.watches[key]
	c.watches[key] = sub
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

func (c *Client) Unwatch(key string) bool {
	c.mu.Lock()
	sub, ok := c.watches[key]
	delete(c.watches, key)
	c.mu.Unlock()

	if ok {
		sub.Close()
	}
	return ok
}

func (c *Client) Watching(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.watches[key]
	return ok
}

// Release closes every session the client holds, each running its full close
// sequence, then every watch. It is safe to call more than once.
func (c *Client) Release(ctx context.Context) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	sessions := c.sessions
	watches := c.watches
	c.sessions = map[string]*session.Session{}
	c.watches = map[string]store.Subscription{}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()
			if err := sess.Close(ctx); err != nil {
				c.logger.Error().Err(err).Str("note_id", sess.NoteID()).Msg("failed to close session")
			}
		}(sess)
	}
	wg.Wait()

	for key, sub := range watches {
		if err := sub.Close(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("failed to close watch")
		}
	}
	c.cancel()
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.Send)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		c.Release(ctx)
		cancel()
		c.Manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read failed")
			}
			break
		}

		c.Manager.dispatch(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Manager.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
