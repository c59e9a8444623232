// Package integrations holds the collaborators around the entity store:
// the auth placeholder, file uploads and LLM invocation.
package integrations

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/vitalis-dev/vitalis-store/pkg/schema"
)

// TokenSlot is the fixed slot name holding the session token.
const TokenSlot = "vitalis_token"

// Placeholder identity returned for any signed-in session.
const (
	MockUserID    = "mock-user-id"
	MockUserEmail = "mock@example.com"
)

var ErrMissingCredentials = errors.New("identifier and secret are required")

// Slots is a process-local key-value store standing in for browser storage.
type Slots struct {
	mu   sync.RWMutex
	vals map[string]string
}

func NewSlots() *Slots {
	return &Slots{vals: make(map[string]string)}
}

func (s *Slots) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vals[key]
	return v, ok
}

func (s *Slots) Set(key, val string) {
	s.mu.Lock()
	s.vals[key] = val
	s.mu.Unlock()
}

func (s *Slots) Remove(key string) {
	s.mu.Lock()
	delete(s.vals, key)
	s.mu.Unlock()
}

// Session is the result of a login.
type Session struct {
	Token string       `json:"token"`
	User  *schema.User `json:"user"`
}

// Auth is a placeholder authentication service. Any non-empty credentials
// sign in; there is no security model.
type Auth struct {
	slots *Slots
}

func NewAuth(slots *Slots) *Auth {
	if slots == nil {
		slots = NewSlots()
	}
	return &Auth{slots: slots}
}

// IsAuthenticated reports whether a token is present.
func (a *Auth) IsAuthenticated() bool {
	tok, ok := a.slots.Get(TokenSlot)
	return ok && tok != ""
}

// Token returns the current token or "".
func (a *Auth) Token() string {
	tok, _ := a.slots.Get(TokenSlot)
	return tok
}

// Me returns the signed-in user, or nil when signed out.
func (a *Auth) Me() *schema.User {
	if !a.IsAuthenticated() {
		return nil
	}
	return &schema.User{
		ID:       MockUserID,
		Email:    MockUserEmail,
		FullName: "Mock User",
		Role:     "user",
	}
}

// Login stores a fresh mock token.
func (a *Auth) Login(identifier, secret string) (Session, error) {
	if strings.TrimSpace(identifier) == "" || secret == "" {
		return Session{}, ErrMissingCredentials
	}
	tok, err := newToken()
	if err != nil {
		return Session{}, err
	}
	a.slots.Set(TokenSlot, tok)
	return Session{Token: tok, User: a.Me()}, nil
}

// Logout clears the token.
func (a *Auth) Logout() {
	a.slots.Remove(TokenSlot)
}

// Validate reports whether token matches the current session.
func (a *Auth) Validate(token string) bool {
	cur := a.Token()
	return cur != "" && token == cur
}

// RedirectToLogin returns the login URL that sends the user back to
// returnPath afterwards. An empty path means Home.
func RedirectToLogin(returnPath string) string {
	if returnPath == "" {
		returnPath = "Home"
	}
	return "/Login?returnUrl=" + url.QueryEscape(returnPath)
}

func newToken() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "mock-token-" + hex.EncodeToString(b), nil
}
