// Package auth holds the signed-in session: the bearer token, the identity
// it belongs to, and the durable copy of that token.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

// API is the slice of the server the session store needs.
type API interface {
	Register(ctx context.Context, req chessdto.RegisterRequest) error
	Login(ctx context.Context, username, password string) (string, error)
	Profile(ctx context.Context) (*chessdto.Identity, error)
}

type EventKind int

const (
	EventCredential EventKind = iota
	EventIdentity
	EventLoggedOut
)

func (k EventKind) String() string {
	switch k {
	case EventCredential:
		return "credential"
	case EventIdentity:
		return "identity"
	case EventLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind     EventKind
	Identity *chessdto.Identity
	Reason   string
}

type ChangeCallback func(Event)

type callbackEntry struct {
	id int
	fn ChangeCallback
}

type Store struct {
	api    API
	creds  CredentialStore
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	token    string
	identity *chessdto.Identity

	cbM      sync.RWMutex
	nextCbID int
	cbs      []callbackEntry
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(api API, creds CredentialStore, opts ...Option) *Store {
	if creds == nil {
		creds = NewMemoryStore()
	}
	s := &Store{api: api, creds: creds, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the current bearer token or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Identity() *chessdto.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

func (s *Store) Authenticated() bool { return s.Token() != "" }

// Restore loads a previously stored credential and refreshes the identity.
// A missing or expired credential leaves the store logged out with no error.
// A credential the server rejects is discarded; network failures keep it.
func (s *Store) Restore(ctx context.Context) error {
	tok, err := s.creds.Load(ctx)
	if err != nil {
		s.logger.Warn("credential_load_failed", zap.Error(err))
		return err
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil
	}
	if exp, ok := tokenExpiry(tok); ok && !exp.After(s.now()) {
		s.logger.Info("credential_expired", zap.Time("exp", exp))
		s.clear(ctx, "credential expired")
		return nil
	}
	s.setToken(tok)
	s.logger.Info("credential_restored")
	_, err = s.refreshIdentity(ctx)
	return err
}

// Login exchanges credentials for a token, persists it and loads the identity.
func (s *Store) Login(ctx context.Context, username, password string) (*chessdto.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, &chessdto.DomainError{Kind: chessdto.KindAuth, Message: "username and password are required"}
	}
	tok, err := s.api.Login(ctx, username, password)
	if err != nil {
		s.logger.Info("login_failed", zap.String("username", username), zap.Error(err))
		return nil, reclassify(err, chessdto.KindAuth)
	}
	if s.Authenticated() {
		s.clear(ctx, "switching user")
	}
	if err := s.creds.Save(ctx, tok); err != nil {
		s.logger.Warn("credential_save_failed", zap.Error(err))
	}
	s.setToken(tok)
	s.logger.Info("login", zap.String("username", username))
	id, err := s.refreshIdentity(ctx)
	if err != nil && s.Authenticated() {
		// The token is kept. RefreshIdentity fills the identity in later.
		kind := chessdto.KindOf(err)
		if kind == "" {
			kind = chessdto.KindAPI
		}
		return nil, &chessdto.DomainError{Kind: kind, Message: msgProfilePending, Err: err}
	}
	return id, err
}

const msgProfilePending = "signed in, but the profile could not be loaded; run `whoami` to retry"

// Register creates an account. It does not sign in.
func (s *Store) Register(ctx context.Context, req chessdto.RegisterRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.Username == "":
		return &chessdto.DomainError{Kind: chessdto.KindValidation, Message: "username is required"}
	case !strings.Contains(req.Email, "@"):
		return &chessdto.DomainError{Kind: chessdto.KindValidation, Message: "a valid email is required"}
	case req.Password == "":
		return &chessdto.DomainError{Kind: chessdto.KindValidation, Message: "password is required"}
	}
	if err := s.api.Register(ctx, req); err != nil {
		s.logger.Info("register_failed", zap.String("username", req.Username), zap.Error(err))
		return reclassify(err, chessdto.KindValidation)
	}
	s.logger.Info("register", zap.String("username", req.Username))
	return nil
}

// Logout drops the token and identity and clears durable storage.
func (s *Store) Logout(ctx context.Context) {
	s.clear(ctx, "logout")
}

// Invalidate is Logout triggered by the server rejecting the credential.
func (s *Store) Invalidate(ctx context.Context, reason string) {
	if !s.Authenticated() {
		return
	}
	s.logger.Warn("credential_invalidated", zap.String("reason", reason))
	s.clear(ctx, reason)
}

// RefreshIdentity reloads the profile for the current token.
func (s *Store) RefreshIdentity(ctx context.Context) (*chessdto.Identity, error) {
	if !s.Authenticated() {
		return nil, &chessdto.DomainError{Kind: chessdto.KindAuth, Message: "not logged in"}
	}
	return s.refreshIdentity(ctx)
}

func (s *Store) refreshIdentity(ctx context.Context) (*chessdto.Identity, error) {
	tok := s.Token()
	id, err := s.api.Profile(ctx)
	if err != nil {
		if rejectsCredential(err) {
			s.Invalidate(ctx, "profile rejected")
			return nil, reclassify(err, chessdto.KindAuth)
		}
		s.logger.Warn("profile_failed", zap.Error(err))
		return nil, err
	}
	if id == nil {
		return nil, &chessdto.DomainError{Kind: chessdto.KindAPI, Message: "empty profile"}
	}
	s.mu.Lock()
	if s.token != tok {
		s.mu.Unlock()
		return nil, &chessdto.DomainError{Kind: chessdto.KindAuth, Message: "session changed"}
	}
	cp := *id
	s.identity = &cp
	s.mu.Unlock()
	s.notify(Event{Kind: EventIdentity, Identity: id})
	return id, nil
}

func (s *Store) setToken(tok string) {
	s.mu.Lock()
	s.token = tok
	s.identity = nil
	s.mu.Unlock()
	s.notify(Event{Kind: EventCredential})
}

func (s *Store) clear(ctx context.Context, reason string) {
	s.mu.Lock()
	had := s.token != "" || s.identity != nil
	s.token = ""
	s.identity = nil
	s.mu.Unlock()
	if err := s.creds.Clear(ctx); err != nil {
		s.logger.Warn("credential_clear_failed", zap.Error(err))
	}
	if had {
		s.logger.Info("logged_out", zap.String("reason", reason))
		s.notify(Event{Kind: EventLoggedOut, Reason: reason})
	}
}

// OnChange registers cb for credential/identity changes and returns its id.
func (s *Store) OnChange(cb ChangeCallback) int {
	if cb == nil {
		return 0
	}
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCbID++
	s.cbs = append(s.cbs, callbackEntry{id: s.nextCbID, fn: cb})
	return s.nextCbID
}

func (s *Store) RemoveCallback(id int) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	for i, e := range s.cbs {
		if e.id == id {
			s.cbs = append(s.cbs[:i], s.cbs[i+1:]...)
			return
		}
	}
}

func (s *Store) notify(ev Event) {
	s.cbM.RLock()
	list := make([]ChangeCallback, 0, len(s.cbs))
	for _, e := range s.cbs {
		list = append(list, e.fn)
	}
	s.cbM.RUnlock()
	for _, fn := range list {
		fn(ev)
	}
}

// rejectsCredential reports a server-side refusal of the token itself.
func rejectsCredential(err error) bool {
	switch chessdto.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
		return true
	}
	return chessdto.IsKind(err, chessdto.KindAuth)
}

// reclassify turns a 4xx API error into kind. Transport and 5xx errors pass through.
func reclassify(err error, kind chessdto.ErrorKind) error {
	var de *chessdto.DomainError
	if !errors.As(err, &de) {
		return err
	}
	if de.Kind == chessdto.KindAPI && de.Status >= 400 && de.Status < 500 {
		return de.WithKind(kind)
	}
	if de.Kind == chessdto.KindAPI && de.Status == 0 {
		return de.WithKind(kind)
	}
	return err
}
