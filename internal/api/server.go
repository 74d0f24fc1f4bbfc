// Package api adapts the chat components to HTTP. Handlers stay thin: decode,
// call the component, map the failure kind to a status code.
package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/auth"
	"github.com/fathima-sithara/chat-core/internal/chat"
	"github.com/fathima-sithara/chat-core/internal/gateway"
	"github.com/fathima-sithara/chat-core/internal/metrics"
)

type Server struct {
	conversations *chat.ConversationStore
	participants  *chat.ParticipantRegistry
	messages      *chat.MessageStore
	reactions     *chat.ReactionIndex
	presence      *chat.PresenceTracker
	log           *zap.SugaredLogger
}

type Deps struct {
	Conversations *chat.ConversationStore
	Participants  *chat.ParticipantRegistry
	Messages      *chat.MessageStore
	Reactions     *chat.ReactionIndex
	Presence      *chat.PresenceTracker
	Gateway       *gateway.Gateway
	Verifier      auth.Verifier
	Log           *zap.SugaredLogger
}

func NewServer(d Deps) *fiber.App {
	app := fiber.New()
	app.Use(fiberlogger.New())

	s := &Server{
		conversations: d.Conversations,
		participants:  d.Participants,
		messages:      d.Messages,
		reactions:     d.Reactions,
		presence:      d.Presence,
		log:           d.Log,
	}

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1")

	// registered before the auth middleware: browsers cannot set headers on a
	// websocket upgrade, so the gateway verifies the handshake token itself
	v1.Get("/ws", websocket.New(d.Gateway.Handle()))

	v1.Use(JWTAuth(d.Verifier))

	v1.Post("/conversations/direct", s.createDirect)
	v1.Post("/conversations", s.createGroup)
	v1.Get("/conversations/:id", s.getConversation)
	v1.Patch("/conversations/:id", s.updateConversation)
	v1.Post("/conversations/:id/lock", s.lockConversation)
	v1.Post("/conversations/:id/join", s.joinConversation)
	v1.Post("/conversations/:id/leave", s.leaveConversation)
	v1.Get("/conversations/:id/participants", s.listParticipants)
	v1.Post("/conversations/:id/typing", s.setTyping)
	v1.Post("/conversations/:id/read", s.markRead)
	v1.Post("/conversations/:id/mute", s.setMute)
	v1.Post("/conversations/:id/roles", s.setRole)

	v1.Post("/conversations/:id/messages", s.sendMessage)
	v1.Get("/conversations/:id/messages", s.listMessages)
	v1.Patch("/messages/:msg_id", s.editMessage)
	v1.Delete("/messages/:msg_id", s.deleteMessage)

	v1.Post("/messages/:msg_id/reactions", s.addReaction)
	v1.Delete("/messages/:msg_id/reactions", s.removeReaction)
	v1.Get("/messages/:msg_id/reactions", s.listReactions)

	v1.Post("/presence/heartbeat", s.heartbeat)

	return app
}

func JWTAuth(v auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.ParseBearer(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid authorization"})
		}
		userID, err := v.Verify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, chat.ErrNotParticipant),
		errors.Is(err, chat.ErrForbidden),
		errors.Is(err, chat.ErrInsufficientPermissions),
		errors.Is(err, chat.ErrOwnerCannotLeave):
		return fiber.StatusForbidden
	case errors.Is(err, chat.ErrConversationLocked):
		return fiber.StatusLocked
	case errors.Is(err, chat.ErrAlreadyDeleted),
		errors.Is(err, chat.ErrEditWindowExpired):
		return fiber.StatusConflict
	case errors.Is(err, chat.ErrInvalidPayload),
		errors.Is(err, chat.ErrInvalidReaction),
		errors.Is(err, chat.ErrInvalidState),
		errors.Is(err, chat.ErrInvalidTitle),
		errors.Is(err, chat.ErrInvalidMembers),
		errors.Is(err, chat.ErrInsufficientMembers),
		errors.Is(err, chat.ErrInvalidPageSize),
		errors.Is(err, chat.ErrFutureTimestamp),
		errors.Is(err, chat.ErrUnsupportedForDirect):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
