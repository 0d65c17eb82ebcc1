package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"elearning/internal/apperr"
	"elearning/internal/cache"
	"elearning/internal/ids"
	"elearning/internal/mail"
	"elearning/internal/models"
	"elearning/internal/queue"
	"elearning/internal/repository"
	"elearning/internal/security"
)

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindCredentialsByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetCredentialsByID(ctx context.Context, id string) (models.User, error)
	UpdateInfo(ctx context.Context, id, name, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, id string, avatar models.Avatar) (models.Avatar, models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type SessionStore interface {
	Put(ctx context.Context, user models.User) error
	Get(ctx context.Context, userID string) (models.User, error)
	Exists(ctx context.Context, userID string) (bool, error)
	Delete(ctx context.Context, userID string) error
	Refresh(ctx context.Context, user models.User) error
}

type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Verify(password string, encodedHash []byte) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, note mail.Notification) error
}

type AvatarStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	URL(key string) string
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

type AccountDeps struct {
	Users         UserStore
	Sessions      SessionStore
	Tokens        *security.TokenIssuer
	Activation    *security.ActivationCodec
	Hasher        PasswordHasher
	Notifier      Notifier
	Avatars       AvatarStore
	Tasks         TaskQueue
	AvatarSecret  string
	MaxAvatarSize int64
	Log           zerolog.Logger
}

// AccountService implements the account lifecycle. Every error it returns is
// an *apperr.Error.
type AccountService struct {
	users         UserStore
	sessions      SessionStore
	tokens        *security.TokenIssuer
	activation    *security.ActivationCodec
	hasher        PasswordHasher
	notifier      Notifier
	avatars       AvatarStore
	tasks         TaskQueue
	avatarSecret  string
	maxAvatarSize int64
	log           zerolog.Logger
}

func NewAccountService(deps AccountDeps) (*AccountService, error) {
	if deps.Users == nil || deps.Sessions == nil || deps.Tokens == nil ||
		deps.Activation == nil || deps.Hasher == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("account service: missing dependency")
	}
	return &AccountService{
		users:         deps.Users,
		sessions:      deps.Sessions,
		tokens:        deps.Tokens,
		activation:    deps.Activation,
		hasher:        deps.Hasher,
		notifier:      deps.Notifier,
		avatars:       deps.Avatars,
		tasks:         deps.Tasks,
		avatarSecret:  deps.AvatarSecret,
		maxAvatarSize: deps.MaxAvatarSize,
		log:           deps.Log,
	}, nil
}

// Session is the result of every entry point that starts or renews a session.
type Session struct {
	User   models.User
	Tokens security.TokenPair
}

const (
	msgEmailExists        = "Email already exists"
	msgInvalidCredentials = "Invalid email or password"
	msgLoginRequired      = "Please login to access this resource"
	msgSessionNotActive   = "Session is not active, please login again"
	msgUserNotFound       = "User not found"
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Avatar   string
}

type RegisterResult struct {
	Email           string
	ActivationToken string
}

// Register validates the request and mails an activation code. The user is
// created only by Activate.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	pending := models.PendingRegistration{
		Name:     cleanName(in.Name),
		Email:    models.NormalizeEmail(in.Email),
		Password: in.Password,
	}
	if pending.Name == "" || pending.Email == "" || pending.Password == "" {
		return RegisterResult{}, apperr.Validation("Name, email and password are required")
	}
	if !models.ValidEmail(pending.Email) {
		return RegisterResult{}, apperr.Validation("Please enter a valid email")
	}
	if len(pending.Password) < models.MinPasswordLength {
		return RegisterResult{}, apperr.Validation(fmt.Sprintf("Password must be at least %d characters", models.MinPasswordLength))
	}
	if url := strings.TrimSpace(in.Avatar); url != "" {
		pending.Avatar = &models.Avatar{URL: url}
	}

	if err := s.ensureEmailFree(ctx, pending.Email, ""); err != nil {
		return RegisterResult{}, err
	}

	token, err := s.activation.Issue(pending)
	if err != nil {
		return RegisterResult{}, apperr.Internal(err)
	}

	note := mail.Notification{
		To:       pending.Email,
		Subject:  "Activate your account",
		Template: mail.TemplateActivation,
		Data: map[string]any{
			"user":           pending.Name,
			"activationCode": token.ActivationCode,
		},
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		return RegisterResult{}, apperr.Internal(err)
	}

	return RegisterResult{Email: pending.Email, ActivationToken: token.Token}, nil
}

// Activate creates the user held in the token. The unique index on email is
// the final guard when two activations race.
func (s *AccountService) Activate(ctx context.Context, token, code string) (models.User, error) {
	if token == "" || code == "" {
		return models.User{}, apperr.Validation("Activation token and code are required")
	}

	pending, err := s.activation.Verify(token, code)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrCodeMismatch):
			return models.User{}, apperr.Wrap(apperr.KindCodeMismatch, "Invalid activation code", err)
		case errors.Is(err, security.ErrExpired):
			return models.User{}, apperr.Wrap(apperr.KindExpiredActivation, "Activation token has expired", err)
		default:
			return models.User{}, apperr.Wrap(apperr.KindInvalidActivation, "Invalid activation token", err)
		}
	}

	if err := s.ensureEmailFree(ctx, pending.Email, ""); err != nil {
		return models.User{}, err
	}

	hash, err := s.hasher.Hash(pending.Password)
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}

	user := models.User{
		ID:           ids.New(),
		Name:         pending.Name,
		Email:        pending.Email,
		PasswordHash: hash,
		Avatar:       models.DefaultAvatar(),
		Role:         models.UserRoleUser,
		IsVerified:   true,
		Courses:      []models.CourseRef{},
	}
	if pending.Avatar != nil && pending.Avatar.URL != "" {
		user.Avatar = *pending.Avatar
	}

	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, storeError(err)
	}
	return user.Public(), nil
}

func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, apperr.Validation("Please enter email and password")
	}

	user, err := s.users.FindCredentialsByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.log.Info().Str("reason", "unknown_email").Msg("login rejected")
		return Session{}, apperr.New(apperr.KindInvalidCredentials, msgInvalidCredentials)
	}
	if err != nil {
		return Session{}, storeError(err)
	}

	if !user.HasPassword() {
		s.log.Info().Str("user_id", user.ID).Str("reason", "no_password").Msg("login rejected")
		return Session{}, apperr.New(apperr.KindInvalidCredentials, msgInvalidCredentials)
	}
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	if !ok {
		s.log.Info().Str("user_id", user.ID).Str("reason", "wrong_password").Msg("login rejected")
		return Session{}, apperr.New(apperr.KindInvalidCredentials, msgInvalidCredentials)
	}

	return s.startSession(ctx, user)
}

// Logout succeeds whether or not a session marker exists.
func (s *AccountService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, apperr.New(apperr.KindUnauthenticated, msgLoginRequired)
	}

	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.KindInvalidToken, "Could not refresh token", err)
	}

	active, err := s.sessions.Exists(ctx, userID)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	if !active {
		return Session{}, apperr.New(apperr.KindSessionNotActive, msgSessionNotActive)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Session{}, userLookupError(err)
	}
	return s.startSession(ctx, user)
}

type SocialAuthInput struct {
	Email  string
	Name   string
	Avatar string
}

// SocialAuth trusts an identity verified by an external provider. Accounts it
// creates have no password.
func (s *AccountService) SocialAuth(ctx context.Context, in SocialAuthInput) (Session, error) {
	email := models.NormalizeEmail(in.Email)
	name := cleanName(in.Name)
	if email == "" || name == "" {
		return Session{}, apperr.Validation("Email and name are required")
	}
	if !models.ValidEmail(email) {
		return Session{}, apperr.Validation("Please enter a valid email")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return s.startSession(ctx, user)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return Session{}, storeError(err)
	}

	user = models.User{
		ID:         ids.New(),
		Name:       name,
		Email:      email,
		Avatar:     models.DefaultAvatar(),
		Role:       models.UserRoleUser,
		IsVerified: true,
		Courses:    []models.CourseRef{},
	}
	if url := strings.TrimSpace(in.Avatar); url != "" {
		user.Avatar = models.Avatar{URL: url}
	}

	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrEmailTaken) {
			return Session{}, storeError(err)
		}
		// lost a race with a concurrent sign-in for the same email
		if user, err = s.users.FindByEmail(ctx, email); err != nil {
			return Session{}, storeError(err)
		}
	}
	return s.startSession(ctx, user)
}

func (s *AccountService) startSession(ctx context.Context, user models.User) (Session, error) {
	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	user = user.Public()
	if err := s.sessions.Put(ctx, user); err != nil {
		return Session{}, apperr.Internal(err)
	}
	return Session{User: user, Tokens: pair}, nil
}

// ensureEmailFree is advisory; selfID excludes the caller's own record.
func (s *AccountService) ensureEmailFree(ctx context.Context, email, selfID string) error {
	existing, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return storeError(err)
	}
	if selfID != "" && existing.ID == selfID {
		return nil
	}
	return apperr.Validation(msgEmailExists)
}

// storeError translates repository failures into the error taxonomy.
func storeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return apperr.Wrap(apperr.KindValidation, msgEmailExists, err)
	case errors.Is(err, repository.ErrInvalidInput):
		return apperr.Wrap(apperr.KindValidation, "Invalid input", err)
	case errors.Is(err, repository.ErrUserNotFound):
		return apperr.Wrap(apperr.KindNotFound, msgUserNotFound, err)
	default:
		return apperr.Internal(err)
	}
}

func userLookupError(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperr.Wrap(apperr.KindUserNotFound, msgUserNotFound, err)
	}
	return storeError(err)
}

var (
	_ UserStore    = (*repository.UserRepository)(nil)
	_ SessionStore = (*cache.SessionCache)(nil)
)
