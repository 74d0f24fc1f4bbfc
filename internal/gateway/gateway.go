// Package gateway is the realtime edge: it authenticates socket connections,
// scopes them into conversation rooms, dispatches client events, and exposes
// the broadcast API the stores push through.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/auth"
	"github.com/fathima-sithara/chat-core/internal/chat"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"github.com/fathima-sithara/chat-core/internal/models"
	"github.com/fathima-sithara/chat-core/internal/ws"
)

// Client→server event names.
const (
	evJoinConversation  = "join_conversation"
	evLeaveConversation = "leave_conversation"
	evTypingStart       = "typing_start"
	evTypingStop        = "typing_stop"
	evPresenceUpdate    = "presence_update"
)

// Memberships answers whether a user may enter a conversation room.
type Memberships interface {
	Get(ctx context.Context, id, requesterID string) (*models.Conversation, error)
}

// Presence records heartbeats; its broadcasts come back through this gateway.
type Presence interface {
	Heartbeat(ctx context.Context, userID string, state models.PresenceState) (*models.PresenceRecord, error)
}

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Options struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
}

type Gateway struct {
	hub      *ws.Hub
	verifier auth.Verifier
	log      *zap.SugaredLogger
	opts     Options

	memberships Memberships
	presence    Presence
}

// New builds the gateway around the hub. Memberships and presence are bound
// afterwards because the stores broadcast back through this gateway.
func New(hub *ws.Hub, verifier auth.Verifier, log *zap.SugaredLogger, opts Options) *Gateway {
	if opts.PingInterval == 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteDeadline == 0 {
		opts.WriteDeadline = 10 * time.Second
	}
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	return &Gateway{hub: hub, verifier: verifier, log: log, opts: opts}
}

func (g *Gateway) Bind(m Memberships, p Presence) {
	g.memberships = m
	g.presence = p
}

func roomKey(conversationID string) string { return "conversation:" + conversationID }

func frame(event string, payload any) []byte {
	raw, _ := json.Marshal(payload)
	b, _ := json.Marshal(Envelope{Type: event, Payload: raw})
	return b
}

// BroadcastToConversation implements chat.Broadcaster.
func (g *Gateway) BroadcastToConversation(conversationID, event string, payload any) {
	g.hub.BroadcastRoom(roomKey(conversationID), frame(event, payload))
}

// BroadcastGlobal implements chat.Broadcaster.
func (g *Gateway) BroadcastGlobal(event string, payload any) {
	g.hub.BroadcastAll(frame(event, payload))
}

// Handle returns the fiber websocket handler. The token rides the handshake
// query; an invalid token terminates the connection immediately.
func (g *Gateway) Handle() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		token := conn.Query("token")
		if token == "" {
			if t, err := auth.ParseBearer(conn.Headers("Authorization")); err == nil {
				token = t
			}
		}
		userID, err := g.verifier.Verify(token)
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage,
				frame("error", map[string]any{"code": "AuthenticationFailed"}))
			_ = conn.Close()
			return
		}

		client := ws.NewClient(conn, uuid.NewString(), userID)
		g.hub.Register(client)
		metrics.WSConnections.Inc()
		go client.WritePump(g.opts.PingInterval, g.opts.WriteDeadline)

		ctx := context.Background()
		if _, err := g.presence.Heartbeat(ctx, userID, models.PresenceOnline); err != nil {
			g.log.Warnw("presence online failed", "user", userID, "err", err)
		}

		g.readLoop(ctx, conn, client)

		// disconnect: evict from all rooms, then announce offline globally
		g.hub.Unregister(client)
		client.Close()
		metrics.WSConnections.Dec()
		if _, err := g.presence.Heartbeat(ctx, userID, models.PresenceOffline); err != nil {
			g.log.Warnw("presence offline failed", "user", userID, "err", err)
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, client *ws.Client) {
	conn.SetReadLimit(g.opts.MaxMessageSize)
	readWait := g.opts.PingInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			client.Enqueue(frame("error", map[string]any{"message": "malformed frame"}))
			continue
		}
		g.dispatch(ctx, client, env)
	}
}

type convPayload struct {
	ConversationID string `json:"conversation_id"`
}

type presencePayload struct {
	State models.PresenceState `json:"state"`
}

// dispatch handles one client event. Failures are scoped: the client gets an
// error frame and the connection stays up.
func (g *Gateway) dispatch(ctx context.Context, client *ws.Client, env Envelope) {
	metrics.WSEvents.WithLabelValues(env.Type).Inc()
	switch env.Type {
	case evJoinConversation:
		var p convPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.ConversationID == "" {
			g.scopedError(client, env.Type, "conversation_id required")
			return
		}
		if _, err := g.memberships.Get(ctx, p.ConversationID, client.UserID); err != nil {
			g.scopedError(client, env.Type, err.Error())
			return
		}
		g.hub.Join(client, roomKey(p.ConversationID))

	case evLeaveConversation:
		var p convPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.ConversationID == "" {
			g.scopedError(client, env.Type, "conversation_id required")
			return
		}
		g.hub.Leave(client, roomKey(p.ConversationID))

	case evTypingStart, evTypingStop:
		var p convPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.ConversationID == "" {
			g.scopedError(client, env.Type, "conversation_id required")
			return
		}
		if !g.hub.InRoom(client, roomKey(p.ConversationID)) {
			g.scopedError(client, env.Type, "join the conversation first")
			return
		}
		// ephemeral signal: no persistence, straight to the room
		g.BroadcastToConversation(p.ConversationID, chat.EventUserTyping, map[string]any{
			"user_id":         client.UserID,
			"conversation_id": p.ConversationID,
			"is_typing":       env.Type == evTypingStart,
		})

	case evPresenceUpdate:
		var p presencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			g.scopedError(client, env.Type, "state required")
			return
		}
		if _, err := g.presence.Heartbeat(ctx, client.UserID, p.State); err != nil {
			g.scopedError(client, env.Type, err.Error())
		}

	default:
		g.scopedError(client, env.Type, "unknown event")
	}
}

func (g *Gateway) scopedError(client *ws.Client, event, message string) {
	client.Enqueue(frame("error", map[string]any{"event": event, "message": message}))
}
