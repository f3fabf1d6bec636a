// Package auth issues and validates the bearer tokens used by the admin
// surface. Credentials live in the operators table as bcrypt hashes.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/pb2106/Network-Control/internal/store"
)

// ErrInvalidCredentials is returned for a bad username or password. The two
// cases are deliberately indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned when a presented token fails validation.
var ErrInvalidToken = errors.New("invalid token")

// Queries is the subset of the store used by the auth service.
type Queries interface {
	GetOperatorByUsername(ctx context.Context, username string) (store.Operator, error)
	TouchOperatorLogin(ctx context.Context, id int64, at time.Time) error
}

// Claims is the JWT payload for an authenticated operator.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret   string
	TokenTTL time.Duration
}

// Service authenticates operators and mints HS256 tokens.
type Service struct {
	log    zerolog.Logger
	q      Queries
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(log zerolog.Logger, q Queries, opts Options) *Service {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		log:    log,
		q:      q,
		secret: []byte(opts.Secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Login verifies the credentials against the operators table and returns a
// signed token plus the operator record. A bcrypt comparison runs even when
// the username is unknown so the two failure modes take comparable time.
func (s *Service) Login(ctx context.Context, username, password string) (string, store.Operator, error) {
	username = strings.TrimSpace(username)

	op, err := s.q.GetOperatorByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000uFz5uW0KWauzW9M2hEH3FMMmxuGpkVK"), []byte(password))
			s.log.Debug().Str("username", username).Msg("login rejected: unknown operator")
			return "", store.Operator{}, ErrInvalidCredentials
		}
		return "", store.Operator{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		s.log.Debug().Str("username", username).Msg("login rejected: bad password")
		return "", store.Operator{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	claims := Claims{
		Username: op.Username,
		Role:     op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", store.Operator{}, err
	}

	if err := s.q.TouchOperatorLogin(ctx, op.ID, now); err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("failed to record login time")
	}
	return signed, op, nil
}

// Validate parses a token and returns its claims when the signature and
// expiry check out.
func (s *Service) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword produces the bcrypt hash stored for a new operator.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
