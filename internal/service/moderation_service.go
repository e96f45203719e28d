package service

import (
	"context"
	"errors"
	"time"

	"airwave/internal/models"
	"airwave/internal/repository"

	"gorm.io/gorm"
)

// ModerationService provides room moderation: kicks, bans, mutes, and the
// presence sessions used to fast-path admission checks.
type ModerationService struct {
	repo repository.ModerationRepository
}

// NewModerationService returns a new ModerationService.
func NewModerationService(repo repository.ModerationRepository) *ModerationService {
	return &ModerationService{repo: repo}
}

// Kick records a kick and marks the target's sessions offline. Severing any
// open connection is the fan-out engine's job; callers evict through the hub
// after this succeeds.
func (s *ModerationService) Kick(ctx context.Context, roomKey string, targetUserID *uint, targetFingerprint string, moderatorID uint, reason string) error {
	action := &models.ModerationAction{
		RoomKey:           roomKey,
		TargetUserID:      targetUserID,
		TargetFingerprint: targetFingerprint,
		ModeratorID:       moderatorID,
		ActionType:        models.ActionKick,
		Reason:            reason,
		IsActive:          true,
	}
	if err := s.repo.CreateAction(ctx, action); err != nil {
		return models.NewInternalError(err)
	}
	if err := s.repo.MarkSessionsOffline(ctx, roomKey, targetUserID, targetFingerprint); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Ban records a ban, computes its expiry from durationMinutes (absent means
// permanent), and flags matching sessions so the send path rejects quickly.
func (s *ModerationService) Ban(ctx context.Context, roomKey string, targetUserID *uint, targetFingerprint string, moderatorID uint, reason string, durationMinutes *int) error {
	action := &models.ModerationAction{
		RoomKey:           roomKey,
		TargetUserID:      targetUserID,
		TargetFingerprint: targetFingerprint,
		ModeratorID:       moderatorID,
		ActionType:        models.ActionBan,
		Reason:            reason,
		DurationMinutes:   durationMinutes,
		IsActive:          true,
	}
	if durationMinutes != nil {
		expires := time.Now().Add(time.Duration(*durationMinutes) * time.Minute)
		action.ExpiresAt = &expires
	}
	if err := s.repo.CreateAction(ctx, action); err != nil {
		return models.NewInternalError(err)
	}

	banned := true
	if err := s.repo.SetSessionFlags(ctx, roomKey, targetUserID, targetFingerprint, &banned, nil); err != nil {
		return models.NewInternalError(err)
	}
	if err := s.repo.MarkSessionsOffline(ctx, roomKey, targetUserID, targetFingerprint); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Mute records a mute. The target stays in the room; their messages are
// rejected at send time until the mute lapses.
func (s *ModerationService) Mute(ctx context.Context, roomKey string, targetUserID *uint, targetFingerprint string, moderatorID uint, reason string, durationMinutes *int) error {
	action := &models.ModerationAction{
		RoomKey:           roomKey,
		TargetUserID:      targetUserID,
		TargetFingerprint: targetFingerprint,
		ModeratorID:       moderatorID,
		ActionType:        models.ActionMute,
		Reason:            reason,
		DurationMinutes:   durationMinutes,
		IsActive:          true,
	}
	if durationMinutes != nil {
		expires := time.Now().Add(time.Duration(*durationMinutes) * time.Minute)
		action.ExpiresAt = &expires
	}
	if err := s.repo.CreateAction(ctx, action); err != nil {
		return models.NewInternalError(err)
	}

	muted := true
	if err := s.repo.SetSessionFlags(ctx, roomKey, targetUserID, targetFingerprint, nil, &muted); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Unban deactivates standing bans and clears session flags.
func (s *ModerationService) Unban(ctx context.Context, roomKey string, targetUserID *uint, targetFingerprint string) error {
	if err := s.repo.DeactivateBans(ctx, roomKey, targetUserID, targetFingerprint); err != nil {
		return models.NewInternalError(err)
	}
	banned := false
	if err := s.repo.SetSessionFlags(ctx, roomKey, targetUserID, targetFingerprint, &banned, nil); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// IsBanned reports whether the identity is currently banned from the room.
// The session row is the fast path; on a miss the standing moderation records
// decide. A ban matching either the user ID or the fingerprint counts.
func (s *ModerationService) IsBanned(ctx context.Context, roomKey string, userID *uint, fingerprint string) (bool, error) {
	session, err := s.repo.GetSession(ctx, roomKey, userID, fingerprint)
	if err == nil && session.IsBanned {
		return true, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !models.IsSchemaMissingError(err) {
		return false, models.NewInternalError(err)
	}

	actions, err := s.repo.ActiveActions(ctx, roomKey, models.ActionBan, userID, fingerprint)
	if err != nil {
		if models.IsSchemaMissingError(err) {
			return false, nil
		}
		return false, models.NewInternalError(err)
	}
	now := time.Now()
	for _, action := range actions {
		if action.InEffect(now) {
			return true, nil
		}
	}
	return false, nil
}

// IsMuted reports whether the identity is currently muted in the room.
func (s *ModerationService) IsMuted(ctx context.Context, roomKey string, userID *uint, fingerprint string) (bool, error) {
	session, err := s.repo.GetSession(ctx, roomKey, userID, fingerprint)
	if err == nil && session.IsMuted {
		return true, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !models.IsSchemaMissingError(err) {
		return false, models.NewInternalError(err)
	}

	actions, err := s.repo.ActiveActions(ctx, roomKey, models.ActionMute, userID, fingerprint)
	if err != nil {
		if models.IsSchemaMissingError(err) {
			return false, nil
		}
		return false, models.NewInternalError(err)
	}
	now := time.Now()
	for _, action := range actions {
		if action.InEffect(now) {
			return true, nil
		}
	}
	return false, nil
}

// ListBans returns the active bans for a room.
func (s *ModerationService) ListBans(ctx context.Context, roomKey string) ([]*models.ModerationAction, error) {
	bans, err := s.repo.ListBans(ctx, roomKey)
	if err != nil {
		if models.IsSchemaMissingError(err) {
			return []*models.ModerationAction{}, nil
		}
		return nil, models.NewInternalError(err)
	}
	return bans, nil
}

// OpenSession records that an identity joined a room.
func (s *ModerationService) OpenSession(ctx context.Context, roomKey string, userID *uint, fingerprint string) error {
	session := &models.ChatSession{
		RoomKey:     roomKey,
		UserID:      userID,
		Fingerprint: fingerprint,
		IsOnline:    true,
		JoinedAt:    time.Now(),
	}
	if err := s.repo.UpsertSession(ctx, session); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// CloseSession marks an identity's room session offline.
func (s *ModerationService) CloseSession(ctx context.Context, roomKey string, userID *uint, fingerprint string) error {
	if err := s.repo.MarkSessionsOffline(ctx, roomKey, userID, fingerprint); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// OnlineCount reports how many sessions are currently marked online in a room.
func (s *ModerationService) OnlineCount(ctx context.Context, roomKey string) (int64, error) {
	count, err := s.repo.OnlineCount(ctx, roomKey)
	if err != nil {
		if models.IsSchemaMissingError(err) {
			return 0, nil
		}
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
