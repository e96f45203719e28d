package server

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"airwave/internal/models"
)

// ModerationRequest is the body for kick, ban, mute, and unban actions. The
// target is a user ID, an origin fingerprint for anonymous listeners, or both.
type ModerationRequest struct {
	TargetUserID      *uint  `json:"target_user_id,omitempty"`
	TargetFingerprint string `json:"target_fingerprint,omitempty"`
	Reason            string `json:"reason,omitempty"`
	DurationMinutes   *int   `json:"duration_minutes,omitempty"`
}

func (r *ModerationRequest) validate() error {
	if r.TargetUserID == nil && r.TargetFingerprint == "" {
		return models.NewValidationError("a target user ID or fingerprint is required")
	}
	if r.DurationMinutes != nil && *r.DurationMinutes <= 0 {
		return models.NewValidationError("duration must be positive")
	}
	return nil
}

func (s *Server) parseModerationRequest(c *fiber.Ctx) (*ModerationRequest, string, error) {
	var req ModerationRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, "", models.NewValidationError("invalid request body")
	}
	if err := req.validate(); err != nil {
		return nil, "", err
	}

	b, err := s.registry.Resolve(c.UserContext(), c.Params("identifier"))
	if err != nil {
		return nil, "", err
	}
	return &req, b.RoomKey(), nil
}

// evictFromRoom severs every hub connection the identity holds in the room
// and releases the presence slot each of those connections was counted for.
// The evicted connection's own disconnect cleanup still runs a Leave of its
// own; Presence floors at zero, so that stays a no-op.
func (s *Server) evictFromRoom(ctx context.Context, roomKey, identityKey, reason string) int {
	evicted := s.hub.EvictFromRoom(roomKey, identityKey, reason)
	for i := 0; i < evicted; i++ {
		s.presence.Leave(ctx, roomKey, identityKey)
	}
	return evicted
}

// KickFromRoom records a kick and severs the target's room membership.
func (s *Server) KickFromRoom(c *fiber.Ctx) error {
	req, roomKey, err := s.parseModerationRequest(c)
	if err != nil {
		return respondAppError(c, err)
	}
	moderatorID := c.Locals("userID").(uint)

	if err := s.moderationService.Kick(c.UserContext(), roomKey, req.TargetUserID, req.TargetFingerprint, moderatorID, req.Reason); err != nil {
		return respondAppError(c, err)
	}

	// The moderation record alone only blocks the next action; push the
	// target out of the room now so the kick is immediate.
	evicted := s.evictFromRoom(c.UserContext(), roomKey, identityKeyFor(req.TargetUserID, req.TargetFingerprint), req.Reason)

	return c.JSON(fiber.Map{
		"status":              "kicked",
		"connections_evicted": evicted,
	})
}

// BanFromRoom records a ban (optionally time-limited) and evicts the target.
func (s *Server) BanFromRoom(c *fiber.Ctx) error {
	req, roomKey, err := s.parseModerationRequest(c)
	if err != nil {
		return respondAppError(c, err)
	}
	moderatorID := c.Locals("userID").(uint)

	if err := s.moderationService.Ban(c.UserContext(), roomKey, req.TargetUserID, req.TargetFingerprint, moderatorID, req.Reason, req.DurationMinutes); err != nil {
		return respondAppError(c, err)
	}

	evicted := s.evictFromRoom(c.UserContext(), roomKey, identityKeyFor(req.TargetUserID, req.TargetFingerprint), req.Reason)

	return c.JSON(fiber.Map{
		"status":              "banned",
		"connections_evicted": evicted,
	})
}

// MuteInRoom records a mute. The target stays connected; their messages are
// rejected at send time.
func (s *Server) MuteInRoom(c *fiber.Ctx) error {
	req, roomKey, err := s.parseModerationRequest(c)
	if err != nil {
		return respondAppError(c, err)
	}
	moderatorID := c.Locals("userID").(uint)

	if err := s.moderationService.Mute(c.UserContext(), roomKey, req.TargetUserID, req.TargetFingerprint, moderatorID, req.Reason, req.DurationMinutes); err != nil {
		return respondAppError(c, err)
	}

	return c.JSON(fiber.Map{"status": "muted"})
}

// UnbanFromRoom lifts standing bans for the target.
func (s *Server) UnbanFromRoom(c *fiber.Ctx) error {
	req, roomKey, err := s.parseModerationRequest(c)
	if err != nil {
		return respondAppError(c, err)
	}

	if err := s.moderationService.Unban(c.UserContext(), roomKey, req.TargetUserID, req.TargetFingerprint); err != nil {
		return respondAppError(c, err)
	}

	return c.JSON(fiber.Map{"status": "unbanned"})
}

// ListRoomBans returns the room's active bans.
func (s *Server) ListRoomBans(c *fiber.Ctx) error {
	b, err := s.registry.Resolve(c.UserContext(), c.Params("identifier"))
	if err != nil {
		return respondAppError(c, err)
	}

	bans, err := s.moderationService.ListBans(c.UserContext(), b.RoomKey())
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"bans": bans})
}
