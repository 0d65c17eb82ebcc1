package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"elearning/internal/models"
)

var (
	ErrInvalidSignature = errors.New("invalid activation token")
	ErrCodeMismatch     = errors.New("activation code mismatch")
)

const (
	activationCodeMin   = 1000
	activationCodeRange = 9000
)

type ActivationToken struct {
	Token          string
	ActivationCode string
}

type activationClaims struct {
	User           models.PendingRegistration `json:"user"`
	ActivationCode string                     `json:"activationCode"`
	jwt.RegisteredClaims
}

// ActivationCodec binds a pending registration to a one-time numeric code
// inside a signed, short-lived token. Nothing is stored server side.
type ActivationCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewActivationCodec(secret string, ttl time.Duration, opts ...func(*ActivationCodec)) (*ActivationCodec, error) {
	if secret == "" {
		return nil, ErrConfiguration
	}
	codec := &ActivationCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(codec)
	}
	return codec, nil
}

func ActivationClock(now func() time.Time) func(*ActivationCodec) {
	return func(c *ActivationCodec) {
		c.now = now
	}
}

func (c *ActivationCodec) Issue(pending models.PendingRegistration) (ActivationToken, error) {
	code, err := GenerateActivationCode()
	if err != nil {
		return ActivationToken{}, err
	}

	now := c.now()
	claims := activationClaims{
		User:           pending,
		ActivationCode: code,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return ActivationToken{}, fmt.Errorf("sign activation token: %w", err)
	}
	return ActivationToken{Token: signed, ActivationCode: code}, nil
}

// Verify checks signature and expiry before comparing codes, so an expired
// token is always reported as ErrExpired.
func (c *ActivationCodec) Verify(token, code string) (models.PendingRegistration, error) {
	claims := &activationClaims{}
	if err := parseHMAC(token, claims, c.secret, c.now); err != nil {
		if errors.Is(err, ErrExpired) {
			return models.PendingRegistration{}, ErrExpired
		}
		return models.PendingRegistration{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if claims.ActivationCode != code {
		return models.PendingRegistration{}, ErrCodeMismatch
	}
	return claims.User, nil
}

// GenerateActivationCode returns a uniformly random code in 1000..9999.
func GenerateActivationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(activationCodeRange))
	if err != nil {
		return "", fmt.Errorf("generate activation code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+activationCodeMin, 10), nil
}
