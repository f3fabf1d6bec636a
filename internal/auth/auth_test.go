package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pb2106/Network-Control/internal/store"
)

type fakeQueries struct {
	getFn     func(ctx context.Context, username string) (store.Operator, error)
	touched   []int64
	touchErr  error
	touchedAt time.Time
}

func (f *fakeQueries) GetOperatorByUsername(ctx context.Context, username string) (store.Operator, error) {
	return f.getFn(ctx, username)
}

func (f *fakeQueries) TouchOperatorLogin(ctx context.Context, id int64, at time.Time) error {
	f.touched = append(f.touched, id)
	f.touchedAt = at
	return f.touchErr
}

func operatorWithPassword(t *testing.T, password string) store.Operator {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return store.Operator{ID: 7, Username: "alice", PasswordHash: hash, Role: "admin"}
}

func TestLogin_Success(t *testing.T) {
	op := operatorWithPassword(t, "s3cret")
	q := &fakeQueries{getFn: func(ctx context.Context, username string) (store.Operator, error) {
		if username != "alice" {
			t.Fatalf("unexpected username %q", username)
		}
		return op, nil
	}}
	s := New(zerolog.Nop(), q, Options{Secret: "test-secret"})

	token, got, err := s.Login(context.Background(), " alice ", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatalf("expected signed token")
	}
	if got.Username != "alice" {
		t.Fatalf("unexpected operator %+v", got)
	}
	if len(q.touched) != 1 || q.touched[0] != 7 {
		t.Fatalf("expected last_login touch for id 7, got %v", q.touched)
	}

	claims, err := s.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Username != "alice" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLogin_BadPassword(t *testing.T) {
	op := operatorWithPassword(t, "s3cret")
	q := &fakeQueries{getFn: func(ctx context.Context, username string) (store.Operator, error) {
		return op, nil
	}}
	s := New(zerolog.Nop(), q, Options{Secret: "test-secret"})

	if _, _, err := s.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(q.touched) != 0 {
		t.Fatalf("failed login must not touch last_login")
	}
}

func TestLogin_UnknownUserLooksLikeBadPassword(t *testing.T) {
	q := &fakeQueries{getFn: func(ctx context.Context, username string) (store.Operator, error) {
		return store.Operator{}, pgx.ErrNoRows
	}}
	s := New(zerolog.Nop(), q, Options{Secret: "test-secret"})

	if _, _, err := s.Login(context.Background(), "mallory", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	q := &fakeQueries{getFn: func(ctx context.Context, username string) (store.Operator, error) {
		return store.Operator{}, boom
	}}
	s := New(zerolog.Nop(), q, Options{Secret: "test-secret"})

	if _, _, err := s.Login(context.Background(), "alice", "s3cret"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestValidate_RejectsExpiredToken(t *testing.T) {
	op := operatorWithPassword(t, "s3cret")
	q := &fakeQueries{getFn: func(ctx context.Context, username string) (store.Operator, error) {
		return op, nil
	}}
	s := New(zerolog.Nop(), q, Options{Secret: "test-secret", TokenTTL: time.Minute})
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := s.Login(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := s.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidate_RejectsWrongSecret(t *testing.T) {
	op := operatorWithPassword(t, "s3cret")
	q := &fakeQueries{getFn: func(ctx context.Context, username string) (store.Operator, error) {
		return op, nil
	}}
	issuer := New(zerolog.Nop(), q, Options{Secret: "secret-a"})
	verifier := New(zerolog.Nop(), q, Options{Secret: "secret-b"})

	token, _, err := issuer.Login(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestValidate_RejectsGarbage(t *testing.T) {
	s := New(zerolog.Nop(), &fakeQueries{}, Options{Secret: "test-secret"})
	if _, err := s.Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
