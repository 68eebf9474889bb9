package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"meterbridge/internal/models"

	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepo struct {
	users  map[string]*models.User
	nextID int

	createErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*models.User{}, nextID: 1}
}

func (f *fakeUserRepo) Create(username, hash string) (int, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	id := f.nextID
	f.nextID++
	f.users[username] = &models.User{ID: id, Username: username, PasswordHash: hash}
	return id, nil
}

func (f *fakeUserRepo) GetByUsername(username string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.users[username], nil
}

func newTestAuth(repo *fakeUserRepo) *AuthService {
	return NewAuthService(repo, AuthConfig{SigningKey: "test-key", TokenTTL: time.Minute})
}

func TestSignUp_HashesPassword(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	s := newTestAuth(repo)

	id, err := s.SignUp("alice", "s3cret")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if id != 1 {
		t.Fatalf("id = %d, want 1", id)
	}

	u := repo.users["alice"]
	if u == nil {
		t.Fatal("user not stored")
	}
	if u.PasswordHash == "s3cret" {
		t.Fatal("password stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestSignUp_EmptyPassword(t *testing.T) {
	t.Parallel()

	s := newTestAuth(newFakeUserRepo())
	if _, err := s.SignUp("alice", "   "); err == nil {
		t.Fatal("expected error for blank password")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	s := newTestAuth(repo)

	if _, err := s.SignUp("alice", "s3cret"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	tok, err := s.GenerateToken("alice", "s3cret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("not a JWT: %q", tok)
	}

	userID, err := s.ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if userID != 1 {
		t.Fatalf("userID = %d, want 1", userID)
	}
}

func TestGenerateToken_WrongPassword(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	s := newTestAuth(repo)
	if _, err := s.SignUp("alice", "s3cret"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	_, err := s.GenerateToken("alice", "nope")
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestGenerateToken_UnknownUser(t *testing.T) {
	t.Parallel()

	s := newTestAuth(newFakeUserRepo())
	_, err := s.GenerateToken("nobody", "x")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestParseToken_WrongKey(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	s := newTestAuth(repo)
	if _, err := s.SignUp("alice", "s3cret"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	tok, err := s.GenerateToken("alice", "s3cret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	other := NewAuthService(repo, AuthConfig{SigningKey: "different-key"})
	if _, err := other.ParseToken(tok); err == nil {
		t.Fatal("expected error for token signed with another key")
	}
}

func TestParseToken_Garbage(t *testing.T) {
	t.Parallel()

	s := newTestAuth(newFakeUserRepo())
	if _, err := s.ParseToken("not.a.token"); err == nil {
		t.Fatal("expected error")
	}
}
