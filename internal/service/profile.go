package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"elearning/internal/apperr"
	"elearning/internal/cache"
	"elearning/internal/ids"
	"elearning/internal/media/sniffer"
	"elearning/internal/models"
	"elearning/internal/queue"
	"elearning/internal/security"
)

// Profile serves the cached snapshot only; the store is not consulted.
func (s *AccountService) Profile(ctx context.Context, userID string) (models.User, error) {
	user, err := s.sessions.Get(ctx, userID)
	if errors.Is(err, cache.ErrSessionNotFound) {
		return models.User{}, apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}
	return user, nil
}

type UpdateInfoInput struct {
	Name  string
	Email string
}

// UpdateInfo changes whichever of name and email are non-empty. Only those
// columns are written, so a concurrent avatar change is kept.
func (s *AccountService) UpdateInfo(ctx context.Context, userID string, in UpdateInfoInput) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, userLookupError(err)
	}

	name := cleanName(in.Name)
	var email string
	if in.Email != "" {
		email = models.NormalizeEmail(in.Email)
		if !models.ValidEmail(email) {
			return models.User{}, apperr.Validation("Please enter a valid email")
		}
		if email == user.Email {
			email = ""
		} else if err := s.ensureEmailFree(ctx, email, user.ID); err != nil {
			return models.User{}, err
		}
	}
	if name == "" && email == "" {
		return user.Public(), nil
	}

	updated, err := s.users.UpdateInfo(ctx, user.ID, name, email)
	if err != nil {
		return models.User{}, storeError(err)
	}
	return s.refreshSnapshot(ctx, updated), nil
}

func (s *AccountService) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return apperr.Validation("Please enter old and new password")
	}
	if len(newPassword) < models.MinPasswordLength {
		return apperr.Validation(fmt.Sprintf("Password must be at least %d characters", models.MinPasswordLength))
	}

	user, err := s.users.GetCredentialsByID(ctx, userID)
	if err != nil {
		return userLookupError(err)
	}
	if !user.HasPassword() {
		return apperr.Validation("This account signs in through a social provider and has no password")
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.New(apperr.KindWrongPassword, "Invalid old password")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return storeError(err)
	}

	s.refreshSnapshot(ctx, user)
	return nil
}

// UpdateAvatar stores a new image and schedules removal of the previous one.
// If the store write fails the uploaded object is scheduled for removal.
func (s *AccountService) UpdateAvatar(ctx context.Context, userID string, r io.Reader, size int64) (models.User, error) {
	if s.avatars == nil {
		return models.User{}, apperr.New(apperr.KindConfiguration, "Avatar uploads are not configured")
	}
	if size <= 0 {
		return models.User{}, apperr.Validation("Avatar file is required")
	}
	if s.maxAvatarSize > 0 && size > s.maxAvatarSize {
		return models.User{}, apperr.Validation(fmt.Sprintf("Avatar must be at most %d bytes", s.maxAvatarSize))
	}

	kind, head, err := sniffer.Detect(r)
	if errors.Is(err, sniffer.ErrUnknownType) {
		return models.User{}, apperr.Validation("Avatar must be a JPEG, PNG, GIF or WebP image")
	}
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}

	key := userID + "/" + security.SignResource(s.avatarSecret, userID, ids.New()) + kind.Extension()
	body := io.MultiReader(bytes.NewReader(head), r)
	if err := s.avatars.Put(ctx, key, body, size, kind.MIME); err != nil {
		return models.User{}, apperr.Internal(err)
	}

	previous, user, err := s.users.UpdateAvatar(ctx, userID, models.Avatar{PublicID: key, URL: s.avatars.URL(key)})
	if err != nil {
		s.scheduleAvatarRemoval(ctx, userID, key)
		return models.User{}, userLookupError(err)
	}
	if !previous.IsDefault() && previous.PublicID != key {
		s.scheduleAvatarRemoval(ctx, userID, previous.PublicID)
	}

	return s.refreshSnapshot(ctx, user), nil
}

func (s *AccountService) scheduleAvatarRemoval(ctx context.Context, userID, key string) {
	if s.tasks == nil {
		return
	}
	task := queue.Task{Type: queue.TaskAvatarDelete, Fields: map[string]string{"key": key}}
	if _, err := s.tasks.Enqueue(ctx, task); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("key", key).Msg("schedule avatar removal failed")
	}
}

// refreshSnapshot rewrites the cached user after a store write. The write has
// already succeeded, so a cache failure is logged rather than returned.
func (s *AccountService) refreshSnapshot(ctx context.Context, user models.User) models.User {
	user = user.Public()
	if err := s.sessions.Refresh(ctx, user); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("session snapshot refresh failed")
	}
	return user
}
