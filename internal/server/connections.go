package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// outboxSize bounds the per-connection send queue. A client that cannot
// drain 64 messages is effectively gone; further messages are dropped until
// it resyncs.
const outboxSize = 64

type playerConnection struct {
	conn   *websocket.Conn
	token  string
	outbox chan []byte
	done   chan struct{}
}

// ConnectionManager maps connection IDs to sockets and session tokens.
// Outbound messages go through a per-connection writer goroutine so room
// handlers never block on a slow client's socket.
type ConnectionManager struct {
	connections map[string]*playerConnection // connectionID -> connection
	tokens      map[string]string            // token -> connectionID
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*playerConnection),
		tokens:      make(map[string]string),
	}
}

func (cm *ConnectionManager) AddConnection(id string, conn *websocket.Conn) {
	pc := &playerConnection{
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}

	cm.mu.Lock()
	cm.connections[id] = pc
	cm.mu.Unlock()

	go pc.writeLoop(id)
}

func (pc *playerConnection) writeLoop(id string) {
	for {
		select {
		case data := <-pc.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := pc.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logrus.Debugf("Write to %s failed: %v", id, err)
			}
		case <-pc.done:
			return
		}
	}
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pc, exists := cm.connections[id]
	if !exists {
		return
	}
	close(pc.done)
	if pc.token != "" && cm.tokens[pc.token] == id {
		delete(cm.tokens, pc.token)
	}
	delete(cm.connections, id)
}

// BindToken associates a session token with a connection. Returns the
// previous connection ID holding the token, if a different one did; the
// caller decides whether to evict it.
func (cm *ConnectionManager) BindToken(id, token string) string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pc, exists := cm.connections[id]
	if !exists {
		return ""
	}

	previous := cm.tokens[token]
	if previous == id {
		previous = ""
	}

	pc.token = token
	cm.tokens[token] = id
	return previous
}

func (cm *ConnectionManager) GetTokenByConnection(id string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if pc, exists := cm.connections[id]; exists {
		return pc.token
	}
	return ""
}

func (cm *ConnectionManager) GetConnectionByToken(token string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.tokens[token]
}

func (cm *ConnectionManager) GetConnection(id string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if pc, exists := cm.connections[id]; exists {
		return pc.conn
	}
	return nil
}

// SendToConnection queues a message for a connection. Never blocks; drops
// the message when the client's queue is full.
func (cm *ConnectionManager) SendToConnection(id string, msg ServerMessage) {
	cm.mu.RLock()
	pc, exists := cm.connections[id]
	cm.mu.RUnlock()
	if !exists {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logrus.Errorf("Marshal outbound message: %v", err)
		return
	}

	select {
	case pc.outbox <- data:
	default:
		logrus.Warnf("Dropping message to %s: outbox full", id)
	}
}

// SendToToken queues a message for whichever connection currently holds the
// token. No-op when the player is disconnected.
func (cm *ConnectionManager) SendToToken(token string, msg ServerMessage) {
	cm.mu.RLock()
	id := cm.tokens[token]
	cm.mu.RUnlock()
	if id == "" {
		return
	}
	cm.SendToConnection(id, msg)
}

// AllConnectionIDs snapshots every live connection, for lobby broadcasts.
func (cm *ConnectionManager) AllConnectionIDs() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ids := make([]string, 0, len(cm.connections))
	for id := range cm.connections {
		ids = append(ids, id)
	}
	return ids
}
