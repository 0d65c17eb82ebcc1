package models

import (
	"regexp"
	"strings"
	"time"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == UserRoleUser || r == UserRoleAdmin
}

const (
	DefaultAvatarPublicID = "default_avatar_id"
	DefaultAvatarURL      = "https://exemplo.com/default-avatar.png"
	MinPasswordLength     = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Avatar struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

func DefaultAvatar() Avatar {
	return Avatar{PublicID: DefaultAvatarPublicID, URL: DefaultAvatarURL}
}

func (a Avatar) IsDefault() bool {
	return a.PublicID == "" || a.PublicID == DefaultAvatarPublicID
}

type CourseRef struct {
	CourseID string `json:"courseId"`
}

// User is the persisted account. PasswordHash is only populated by
// credential reads and never serialized.
type User struct {
	ID           string      `json:"_id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash []byte      `json:"-"`
	Avatar       Avatar      `json:"avatar"`
	Role         UserRole    `json:"role"`
	IsVerified   bool        `json:"isVerified"`
	Courses      []CourseRef `json:"courses"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (u User) HasPassword() bool {
	return len(u.PasswordHash) > 0
}

// Public returns a copy safe to cache or send to clients.
func (u User) Public() User {
	u.PasswordHash = nil
	if u.Courses == nil {
		u.Courses = []CourseRef{}
	}
	return u
}

// PendingRegistration lives only inside a signed activation token.
type PendingRegistration struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Avatar   *Avatar `json:"avatar,omitempty"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
