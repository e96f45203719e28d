package service

import (
	"context"
	"errors"
	"strings"

	"airwave/internal/identity"
	"airwave/internal/models"
	"airwave/internal/repository"

	"gorm.io/gorm"
)

const maxMessageLength = 2000

// ChatService owns chat message semantics: validation, send-time moderation
// checks, and the per-message serialization that keeps like counts exact.
type ChatService struct {
	messages     repository.MessageRepository
	moderation   *ModerationService
	historyLimit int

	messageLocks *keyedMutex
}

// NewChatService returns a new ChatService.
func NewChatService(messages repository.MessageRepository, moderation *ModerationService, historyLimit int) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ChatService{
		messages:     messages,
		moderation:   moderation,
		historyLimit: historyLimit,
		messageLocks: newKeyedMutex(),
	}
}

// SendMessage validates and persists a message. Moderation is enforced here,
// at the send boundary, so a ban or mute issued mid-session takes effect on
// the very next message. The caller broadcasts only after this returns, which
// keeps delivery ordered behind persistence.
func (s *ChatService) SendMessage(ctx context.Context, ident identity.Identity, roomKey, content string, replyToID *uint) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("message content is required")
	}
	if len(content) > maxMessageLength {
		return nil, models.NewValidationError("message content exceeds maximum length")
	}

	banned, err := s.moderation.IsBanned(ctx, roomKey, ident.UserID, ident.Fingerprint)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, models.NewForbiddenError("you are banned from this room")
	}

	muted, err := s.moderation.IsMuted(ctx, roomKey, ident.UserID, ident.Fingerprint)
	if err != nil {
		return nil, err
	}
	if muted {
		return nil, models.NewForbiddenError("you are muted in this room")
	}

	msg := &models.ChatMessage{
		RoomKey:     roomKey,
		AuthorID:    ident.UserID,
		AuthorName:  ident.DisplayName,
		Content:     content,
		MessageType: models.MessageTypeUser,
		ReplyToID:   replyToID,
		LikedBy:     []string{},
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, models.NewInternalError(err)
	}
	return msg, nil
}

// SystemMessage persists a system notice for a room.
func (s *ChatService) SystemMessage(ctx context.Context, roomKey, content string) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		RoomKey:     roomKey,
		AuthorName:  "System",
		Content:     content,
		MessageType: models.MessageTypeSystem,
		LikedBy:     []string{},
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, models.NewInternalError(err)
	}
	return msg, nil
}

// History returns the most recent messages for a room, oldest first.
func (s *ChatService) History(ctx context.Context, roomKey string) ([]*models.ChatMessage, error) {
	messages, err := s.messages.GetRecent(ctx, roomKey, s.historyLimit)
	if err != nil {
		if models.IsSchemaMissingError(err) {
			return []*models.ChatMessage{}, nil
		}
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

// ToggleLike flips the caller's like on a message. Toggles for the same
// message are serialized through a per-message lock so concurrent toggles
// from different identities never lose updates and the count always equals
// the size of the liked-by set. Returns the updated message and whether the
// caller now likes it.
func (s *ChatService) ToggleLike(ctx context.Context, ident identity.Identity, messageID uint) (*models.ChatMessage, bool, error) {
	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, models.NewNotFoundError("message", messageID)
		}
		return nil, false, models.NewInternalError(err)
	}

	key := ident.Key()
	liked := false
	if msg.LikedByContains(key) {
		next := make([]string, 0, len(msg.LikedBy)-1)
		for _, k := range msg.LikedBy {
			if k != key {
				next = append(next, k)
			}
		}
		msg.LikedBy = next
	} else {
		msg.LikedBy = append(msg.LikedBy, key)
		liked = true
	}
	msg.LikeCount = len(msg.LikedBy)

	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, false, models.NewInternalError(err)
	}
	return msg, liked, nil
}

// TogglePin flips a message's pinned flag. Staff only.
func (s *ChatService) TogglePin(ctx context.Context, ident identity.Identity, messageID uint) (*models.ChatMessage, error) {
	if !ident.Can(identity.CapPinMessage) {
		return nil, models.NewForbiddenError("only staff can pin messages")
	}

	s.messageLocks.Lock(messageID)
	defer s.messageLocks.Unlock(messageID)

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("message", messageID)
		}
		return nil, models.NewInternalError(err)
	}

	msg.IsPinned = !msg.IsPinned
	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, models.NewInternalError(err)
	}
	return msg, nil
}

// DeleteMessage removes a message. Authors may delete their own; staff may
// delete anything.
func (s *ChatService) DeleteMessage(ctx context.Context, ident identity.Identity, messageID uint) (*models.ChatMessage, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("message", messageID)
		}
		return nil, models.NewInternalError(err)
	}

	isAuthor := ident.UserID != nil && msg.AuthorID != nil && *ident.UserID == *msg.AuthorID
	if !isAuthor && !ident.Can(identity.CapDeleteMessage) {
		return nil, models.NewForbiddenError("you cannot delete this message")
	}

	if err := s.messages.Delete(ctx, msg.ID); err != nil {
		return nil, models.NewInternalError(err)
	}
	return msg, nil
}
