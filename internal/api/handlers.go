package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/chat-core/internal/chat"
	"github.com/fathima-sithara/chat-core/internal/models"
)

func (s *Server) createDirect(c *fiber.Ctx) error {
	var req struct {
		OtherID string `json:"other_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	conv, err := s.conversations.CreateDirect(c.Context(), userID(c), req.OtherID)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (s *Server) createGroup(c *fiber.Ctx) error {
	var req struct {
		Title     string   `json:"title"`
		MemberIDs []string `json:"member_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	conv, err := s.conversations.CreateGroup(c.Context(), userID(c), req.Title, req.MemberIDs)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (s *Server) getConversation(c *fiber.Ctx) error {
	conv, err := s.conversations.Get(c.Context(), c.Params("id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conv)
}

func (s *Server) updateConversation(c *fiber.Ctx) error {
	var req struct {
		Title *string `json:"title"`
		Icon  *string `json:"icon"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	upd := chat.MetadataUpdate{Title: req.Title, Icon: req.Icon}
	if err := s.conversations.UpdateMetadata(c.Context(), c.Params("id"), userID(c), upd); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// lockConversation is the moderation hook; the admin surface authorizes the
// actor before it reaches here.
func (s *Server) lockConversation(c *fiber.Ctx) error {
	var req struct {
		Locked bool   `json:"locked"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	if err := s.conversations.SetLock(c.Context(), c.Params("id"), req.Locked, req.Reason, userID(c)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) joinConversation(c *fiber.Ctx) error {
	if err := s.conversations.Join(c.Context(), c.Params("id"), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) leaveConversation(c *fiber.Ctx) error {
	if err := s.conversations.Leave(c.Context(), c.Params("id"), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listParticipants(c *fiber.Ctx) error {
	rows, err := s.participants.List(c.Context(), c.Params("id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(rows)
}

func (s *Server) setTyping(c *fiber.Ctx) error {
	var req struct {
		IsTyping bool `json:"is_typing"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	if err := s.participants.SetTyping(c.Context(), c.Params("id"), userID(c), req.IsTyping); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) markRead(c *fiber.Ctx) error {
	var req struct {
		At *time.Time `json:"at"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	if err := s.participants.MarkRead(c.Context(), c.Params("id"), userID(c), req.At); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) setMute(c *fiber.Ctx) error {
	var req struct {
		IsMuted bool `json:"is_muted"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	if err := s.participants.SetMute(c.Context(), c.Params("id"), userID(c), req.IsMuted); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) setRole(c *fiber.Ctx) error {
	var req struct {
		UserID string      `json:"user_id"`
		Role   models.Role `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	if err := s.participants.SetRole(c.Context(), c.Params("id"), userID(c), req.UserID, req.Role); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req struct {
		Type  models.MessageType      `json:"type"`
		Text  string                  `json:"text"`
		Media *models.MediaDescriptor `json:"media"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	msg, err := s.messages.Send(c.Context(), c.Params("id"), userID(c), chat.SendPayload{
		Type:  req.Type,
		Text:  req.Text,
		Media: req.Media,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	opts := chat.ListOptions{
		PageSize:  c.QueryInt("page_size"),
		Cursor:    c.Query("cursor"),
		Ascending: c.Query("order") == "asc",
	}
	page, err := s.messages.List(c.Context(), c.Params("id"), userID(c), opts)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(page)
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidPayload)
	}
	msg, err := s.messages.Edit(c.Context(), c.Params("msg_id"), userID(c), req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msg)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	if err := s.messages.SoftDelete(c.Context(), c.Params("msg_id"), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) addReaction(c *fiber.Ctx) error {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidReaction)
	}
	rec, err := s.reactions.Add(c.Context(), c.Params("msg_id"), userID(c), req.Value)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (s *Server) removeReaction(c *fiber.Ctx) error {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidReaction)
	}
	if err := s.reactions.Remove(c.Context(), c.Params("msg_id"), userID(c), req.Value); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listReactions(c *fiber.Ctx) error {
	rows, err := s.reactions.ListFor(c.Context(), c.Params("msg_id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(rows)
}

func (s *Server) heartbeat(c *fiber.Ctx) error {
	var req struct {
		State models.PresenceState `json:"state"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, chat.ErrInvalidState)
	}
	rec, err := s.presence.Heartbeat(c.Context(), userID(c), req.State)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(rec)
}
