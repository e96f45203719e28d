package server

import (
	"github.com/gofiber/fiber/v2"

	"airwave/internal/chat"
	"airwave/internal/models"
)

// CreateBroadcastRequest is the body for creating a broadcast.
type CreateBroadcastRequest struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	StreamURL   string `json:"stream_url"`
}

// CreateBroadcast registers a new broadcast. Staff only.
func (s *Server) CreateBroadcast(c *fiber.Ctx) error {
	var req CreateBroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	hostID := c.Locals("userID").(uint)
	b := &models.Broadcast{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		StreamURL:   req.StreamURL,
		HostUserID:  &hostID,
	}

	if err := s.broadcastService.Create(c.UserContext(), b); err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(b)
}

// GetLiveBroadcasts lists broadcasts currently on air.
func (s *Server) GetLiveBroadcasts(c *fiber.Ctx) error {
	live, err := s.broadcastService.Live(c.UserContext())
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"broadcasts": live})
}

// GetBroadcast returns one broadcast by durable ID or slug.
func (s *Server) GetBroadcast(c *fiber.Ctx) error {
	b, err := s.registry.Resolve(c.UserContext(), c.Params("identifier"))
	if err != nil {
		return respondAppError(c, err)
	}

	// Session-backed count; includes listeners connected to other instances.
	online, err := s.moderationService.OnlineCount(c.UserContext(), b.RoomKey())
	if err != nil {
		online = int64(s.presence.Count(b.RoomKey()))
	}
	return c.JSON(fiber.Map{
		"broadcast":    b,
		"online_count": online,
	})
}

// GetRoomMessages returns recent chat history for a broadcast's room.
func (s *Server) GetRoomMessages(c *fiber.Ctx) error {
	b, err := s.registry.Resolve(c.UserContext(), c.Params("identifier"))
	if err != nil {
		return respondAppError(c, err)
	}

	messages, err := s.chatService.History(c.UserContext(), b.RoomKey())
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// GoLive flips a broadcast on air, announces it on the notification channel,
// and drops a system message into its chat room.
func (s *Server) GoLive(c *fiber.Ctx) error {
	resolved, err := s.registry.Resolve(c.UserContext(), c.Params("identifier"))
	if err != nil {
		return respondAppError(c, err)
	}

	b, err := s.broadcastService.GoLive(c.UserContext(), resolved.ID)
	if err != nil {
		return respondAppError(c, err)
	}

	s.sseChannel.NotifyStarted(b)

	roomKey := b.RoomKey()
	if msg, err := s.chatService.SystemMessage(c.UserContext(), roomKey, b.Title+" is now live"); err == nil {
		s.hub.BroadcastToRoom(roomKey, chat.Event{
			Type:    chat.EventChatMessage,
			Room:    roomKey,
			Payload: msg,
		})
	}

	return c.JSON(b)
}

// EndBroadcast takes a broadcast off air and announces the transition.
func (s *Server) EndBroadcast(c *fiber.Ctx) error {
	resolved, err := s.registry.Resolve(c.UserContext(), c.Params("identifier"))
	if err != nil {
		return respondAppError(c, err)
	}

	b, err := s.broadcastService.End(c.UserContext(), resolved.ID)
	if err != nil {
		return respondAppError(c, err)
	}

	s.sseChannel.NotifyEnded(b)

	roomKey := b.RoomKey()
	if msg, err := s.chatService.SystemMessage(c.UserContext(), roomKey, b.Title+" has ended"); err == nil {
		s.hub.BroadcastToRoom(roomKey, chat.Event{
			Type:    chat.EventChatMessage,
			Room:    roomKey,
			Payload: msg,
		})
	}

	return c.JSON(b)
}
