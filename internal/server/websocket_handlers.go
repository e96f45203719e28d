package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"airwave/internal/chat"
	"airwave/internal/middleware"
	"airwave/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// sendMessagesPerMinute caps chat sends per identity across all rooms.
const sendMessagesPerMinute = 30

// WebSocketUpgrade gates the websocket routes and captures what the upgraded
// connection will need: the network origin and the optional bearer token.
// Anonymous connections are allowed, so this is not an auth middleware.
func (s *Server) WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		c.Locals("wsOrigin", c.IP())

		token := c.Query("token")
		if token == "" {
			if header := c.Get("Authorization"); header != "" {
				if raw, ok := middleware.BearerFromHeader(header); ok {
					token = raw
				}
			}
		}
		c.Locals("wsToken", token)

		return c.Next()
	}
}

// WebSocketChatHandler handles WebSocket connections for broadcast chat.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ctx := context.Background()

		origin, _ := conn.Locals("wsOrigin").(string)
		token, _ := conn.Locals("wsToken").(string)

		ident := s.resolver.Resolve(ctx, token, origin)

		client, err := s.hub.Register(conn, ident)
		if err != nil {
			log.Printf("WebSocket Chat: Failed to register %s: %v", ident.Key(), err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"code":"CONNECTION_LIMIT","message":"too many connections"}}`))
			_ = conn.Close()
			return
		}

		// Connection ack with the resolved identity.
		ack, _ := json.Marshal(chat.Event{
			Type: chat.EventConnected,
			Payload: map[string]interface{}{
				"connection_id": client.ID,
				"identity":      ident,
			},
		})
		client.TrySend(ack)

		// joinedRooms is only touched from the read goroutine.
		joinedRooms := make(map[string]struct{})

		client.IncomingHandler = func(c *chat.Client, message []byte) {
			var event chat.InboundEvent
			if err := json.Unmarshal(message, &event); err != nil {
				s.wsLog.LogError(ctx, ident.Key(), "", err, "decode")
				s.unicastError(c, models.NewValidationError("invalid message format"))
				return
			}
			s.wsLog.LogMessage(ctx, ident.Key(), event.Room, event.Type)

			switch event.Type {
			case chat.EventJoinRoom:
				s.handleJoinRoom(ctx, c, event, joinedRooms)
			case chat.EventLeaveRoom:
				s.handleLeaveRoom(ctx, c, event, joinedRooms)
			case chat.EventSendMessage:
				s.handleSendMessage(ctx, c, event)
			case chat.EventToggleLike:
				s.handleToggleLike(ctx, c, event)
			case chat.EventTogglePin:
				s.handleTogglePin(ctx, c, event)
			case chat.EventDeleteMsg:
				s.handleDeleteMessage(ctx, c, event)
			default:
				s.unicastError(c, models.NewValidationError("unknown event type"))
			}
		}

		go client.WritePump()
		client.ReadPump()

		// ReadPump returned, the hub has already dropped the client. Close out
		// presence and sessions for every room it was still in.
		for roomKey := range joinedRooms {
			s.presence.Leave(ctx, roomKey, ident.Key())
			_ = s.moderationService.CloseSession(ctx, roomKey, ident.UserID, ident.Fingerprint)
		}
	})
}

func (s *Server) handleJoinRoom(ctx context.Context, client *chat.Client, event chat.InboundEvent, joinedRooms map[string]struct{}) {
	broadcast, err := s.registry.Resolve(ctx, event.Room)
	if err != nil {
		s.unicastError(client, err)
		return
	}
	roomKey := broadcast.RoomKey()
	ident := client.Identity

	banned, err := s.moderationService.IsBanned(ctx, roomKey, ident.UserID, ident.Fingerprint)
	if err != nil {
		s.unicastError(client, err)
		return
	}
	if banned {
		s.unicastError(client, models.NewForbiddenError("you are banned from this room"))
		return
	}

	if !s.hub.JoinRoom(client, roomKey) {
		// Already a member; joining twice is a no-op.
		return
	}
	joinedRooms[roomKey] = struct{}{}

	s.presence.Join(ctx, roomKey, ident.Key())
	if err := s.moderationService.OpenSession(ctx, roomKey, ident.UserID, ident.Fingerprint); err != nil {
		log.Printf("WebSocket: Failed to open session for %s in %s: %v", ident.Key(), roomKey, err)
	}

	history, err := s.chatService.History(ctx, roomKey)
	if err != nil {
		s.unicastError(client, err)
	} else {
		replay, _ := json.Marshal(chat.Event{
			Type: chat.EventChatHistory,
			Room: roomKey,
			Payload: map[string]interface{}{
				"messages": history,
			},
		})
		client.TrySend(replay)
	}

	s.hub.BroadcastToRoom(roomKey, chat.Event{
		Type: chat.EventUserJoined,
		Room: roomKey,
		Payload: map[string]interface{}{
			"display_name": ident.DisplayName,
			"online_count": s.presence.Count(roomKey),
		},
	})
}

func (s *Server) handleLeaveRoom(ctx context.Context, client *chat.Client, event chat.InboundEvent, joinedRooms map[string]struct{}) {
	broadcast, err := s.registry.Resolve(ctx, event.Room)
	if err != nil {
		s.unicastError(client, err)
		return
	}
	roomKey := broadcast.RoomKey()
	ident := client.Identity

	if !s.hub.LeaveRoom(client, roomKey) {
		return
	}
	delete(joinedRooms, roomKey)

	s.presence.Leave(ctx, roomKey, ident.Key())
	_ = s.moderationService.CloseSession(ctx, roomKey, ident.UserID, ident.Fingerprint)

	s.hub.BroadcastToRoom(roomKey, chat.Event{
		Type: chat.EventUserLeft,
		Room: roomKey,
		Payload: map[string]interface{}{
			"display_name": ident.DisplayName,
			"online_count": s.presence.Count(roomKey),
		},
	})
}

func (s *Server) handleSendMessage(ctx context.Context, client *chat.Client, event chat.InboundEvent) {
	broadcast, err := s.registry.Resolve(ctx, event.Room)
	if err != nil {
		s.unicastError(client, err)
		return
	}
	roomKey := broadcast.RoomKey()

	if !s.hub.InRoom(client, roomKey) {
		s.unicastError(client, models.NewValidationError("join the room before sending messages"))
		return
	}

	limitKey := fmt.Sprintf("ratelimit:chat-send:%s", client.Identity.Key())
	ok, err := middleware.CheckRateLimit(ctx, s.redis, limitKey, sendMessagesPerMinute, time.Minute)
	if err != nil {
		log.Printf("WebSocket: Rate limit check failed for %s: %v", client.Identity.Key(), err)
	}
	if !ok {
		s.unicastError(client, models.NewRateLimitError("you are sending messages too quickly"))
		return
	}

	s.presence.Touch(ctx, roomKey, client.Identity.Key())

	// Persist first; the room only ever sees stored messages.
	msg, err := s.chatService.SendMessage(ctx, client.Identity, roomKey, event.Content, event.ReplyToID)
	if err != nil {
		s.unicastError(client, err)
		return
	}

	s.hub.BroadcastToRoom(roomKey, chat.Event{
		Type:    chat.EventChatMessage,
		Room:    roomKey,
		Payload: msg,
	})
}

func (s *Server) handleToggleLike(ctx context.Context, client *chat.Client, event chat.InboundEvent) {
	msg, liked, err := s.chatService.ToggleLike(ctx, client.Identity, event.MessageID)
	if err != nil {
		s.unicastError(client, err)
		return
	}

	s.hub.BroadcastToRoom(msg.RoomKey, chat.Event{
		Type: chat.EventMessageLiked,
		Room: msg.RoomKey,
		Payload: map[string]interface{}{
			"message_id": msg.ID,
			"like_count": msg.LikeCount,
			"liked_by":   msg.LikedBy,
			"liked":      liked,
			"by":         client.Identity.DisplayName,
		},
	})
}

func (s *Server) handleTogglePin(ctx context.Context, client *chat.Client, event chat.InboundEvent) {
	msg, err := s.chatService.TogglePin(ctx, client.Identity, event.MessageID)
	if err != nil {
		s.unicastError(client, err)
		return
	}

	s.hub.BroadcastToRoom(msg.RoomKey, chat.Event{
		Type: chat.EventMessagePinned,
		Room: msg.RoomKey,
		Payload: map[string]interface{}{
			"message_id": msg.ID,
			"is_pinned":  msg.IsPinned,
		},
	})
}

func (s *Server) handleDeleteMessage(ctx context.Context, client *chat.Client, event chat.InboundEvent) {
	msg, err := s.chatService.DeleteMessage(ctx, client.Identity, event.MessageID)
	if err != nil {
		s.unicastError(client, err)
		return
	}

	s.hub.BroadcastToRoom(msg.RoomKey, chat.Event{
		Type: chat.EventMessageDeleted,
		Room: msg.RoomKey,
		Payload: map[string]interface{}{
			"message_id": msg.ID,
		},
	})
}

// unicastError sends an error event to the acting client only. Failures never
// fan out to the room.
func (s *Server) unicastError(client *chat.Client, err error) {
	payload := chat.ErrorPayload{Code: "INTERNAL_ERROR", Message: "something went wrong"}
	if appErr, ok := err.(*models.AppError); ok {
		payload.Code = appErr.Code
		payload.Message = appErr.Message
	}

	frame, marshalErr := json.Marshal(chat.Event{
		Type:    chat.EventError,
		Payload: payload,
	})
	if marshalErr != nil {
		return
	}
	client.TrySend(frame)
}
