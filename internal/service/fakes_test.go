package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"elearning/internal/cache"
	"elearning/internal/mail"
	"elearning/internal/models"
	"elearning/internal/queue"
	"elearning/internal/repository"
	"elearning/internal/security"
)

type memUsers struct {
	byID      map[string]models.User
	createErr error
	avatarErr error
	// afterGet runs once GetByID has read the record
	afterGet  func(id string)
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]models.User)}
}

func (m *memUsers) emailOwner(email string) (models.User, bool) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, true
		}
	}
	return models.User{}, false
}

func (m *memUsers) Create(_ context.Context, user models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, taken := m.emailOwner(user.Email); taken {
		return repository.ErrEmailTaken
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.byID[user.ID] = user
	return nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	if u, ok := m.emailOwner(email); ok {
		u.PasswordHash = nil
		return u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) FindCredentialsByEmail(_ context.Context, email string) (models.User, error) {
	if u, ok := m.emailOwner(email); ok {
		return u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(ctx context.Context, id string) (models.User, error) {
	u, err := m.GetCredentialsByID(ctx, id)
	u.PasswordHash = nil
	if m.afterGet != nil {
		m.afterGet(id)
	}
	return u, err
}

func (m *memUsers) GetCredentialsByID(_ context.Context, id string) (models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) UpdateInfo(_ context.Context, id, name, email string) (models.User, error) {
	stored, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	if email != "" {
		if owner, taken := m.emailOwner(email); taken && owner.ID != id {
			return models.User{}, repository.ErrEmailTaken
		}
		stored.Email = email
	}
	if name != "" {
		stored.Name = name
	}
	m.byID[id] = stored
	return stored.Public(), nil
}

func (m *memUsers) UpdateAvatar(_ context.Context, id string, avatar models.Avatar) (models.Avatar, models.User, error) {
	if m.avatarErr != nil {
		return models.Avatar{}, models.User{}, m.avatarErr
	}
	stored, ok := m.byID[id]
	if !ok {
		return models.Avatar{}, models.User{}, repository.ErrUserNotFound
	}
	previous := stored.Avatar
	stored.Avatar = avatar
	m.byID[id] = stored
	return previous, stored.Public(), nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id string, hash []byte) error {
	stored, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	stored.PasswordHash = hash
	m.byID[id] = stored
	return nil
}

func (m *memUsers) UpdateRole(_ context.Context, id string, role models.UserRole) error {
	stored, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	stored.Role = role
	m.byID[id] = stored
	return nil
}

func (m *memUsers) List(_ context.Context, limit, offset int) ([]models.User, error) {
	users := make([]models.User, 0, len(m.byID))
	for _, u := range m.byID {
		u.PasswordHash = nil
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	if offset >= len(users) {
		return []models.User{}, nil
	}
	users = users[offset:]
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

type recordingNotifier struct {
	notes []mail.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note mail.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

type memAvatars struct {
	objects map[string][]byte
}

func (a *memAvatars) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.objects[key] = raw
	return nil
}

func (a *memAvatars) URL(key string) string {
	return "https://cdn.test/avatars/" + key
}

type memTasks struct {
	tasks []queue.Task
}

func (q *memTasks) Enqueue(_ context.Context, task queue.Task) (string, error) {
	q.tasks = append(q.tasks, task)
	return "1-0", nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	svc      *AccountService
	users    *memUsers
	sessions *cache.SessionCache
	notifier *recordingNotifier
	avatars  *memAvatars
	tasks    *memTasks
	tokens   *security.TokenIssuer
	hasher   *security.Argon2Hasher
	redis    *miniredis.Miniredis
	clock    *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := &clock{now: time.Now()}
	tokens, err := security.NewTokenIssuer("access-secret", "refresh-secret", 5*time.Minute, 72*time.Hour, security.WithClock(clk.Now))
	require.NoError(t, err)
	activation, err := security.NewActivationCodec("activation-secret", time.Hour, security.ActivationClock(clk.Now))
	require.NoError(t, err)

	h := &harness{
		users:    newMemUsers(),
		sessions: cache.NewSessionCache(client, 72*time.Hour),
		notifier: &recordingNotifier{},
		avatars:  &memAvatars{objects: make(map[string][]byte)},
		tasks:    &memTasks{},
		tokens:   tokens,
		hasher:   security.NewArgon2Hasher(security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}),
		redis:    mr,
		clock:    clk,
	}

	h.svc, err = NewAccountService(AccountDeps{
		Users:         h.users,
		Sessions:      h.sessions,
		Tokens:        tokens,
		Activation:    activation,
		Hasher:        h.hasher,
		Notifier:      h.notifier,
		Avatars:       h.avatars,
		Tasks:         h.tasks,
		AvatarSecret:  "avatar-secret",
		MaxAvatarSize: 1 << 20,
		Log:           zerolog.Nop(),
	})
	require.NoError(t, err)
	return h
}

// registerAndActivate runs the full sign-up flow and returns the new user.
func (h *harness) registerAndActivate(t *testing.T, name, email, password string) models.User {
	t.Helper()
	ctx := context.Background()

	res, err := h.svc.Register(ctx, RegisterInput{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	code := h.lastCode(t)

	user, err := h.svc.Activate(ctx, res.ActivationToken, code)
	require.NoError(t, err)
	return user
}

func (h *harness) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, h.notifier.notes)
	code, ok := h.notifier.notes[len(h.notifier.notes)-1].Data["activationCode"].(string)
	require.True(t, ok)
	return code
}

func pngBytes() []byte {
	return append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0}, 64)...)
}

var errBoom = errors.New("boom")
