package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/dgrijalva/jwt-go"

	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

type fakeAPI struct {
	mu          sync.Mutex
	token       string
	loginErr    error
	registerErr error
	profile     *chessdto.Identity
	profileErr  error
	logins      int
	profiles    int
	registered  []chessdto.RegisterRequest
}

func (f *fakeAPI) Register(ctx context.Context, req chessdto.RegisterRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, req)
	return f.registerErr
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.token, nil
}

func (f *fakeAPI) Profile(ctx context.Context) (*chessdto.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func apiErr(status int, msg string) error {
	return &chessdto.DomainError{Kind: chessdto.KindAPI, Status: status, Message: msg}
}

func collect(s *Store) *[]Event {
	var (
		mu  sync.Mutex
		evs []Event
	)
	s.OnChange(func(ev Event) {
		mu.Lock()
		evs = append(evs, ev)
		mu.Unlock()
	})
	return &evs
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestLoginStoresCredentialAndLoadsIdentity(t *testing.T) {
	api := &fakeAPI{token: "tok-1", profile: &chessdto.Identity{Username: "alice", Email: "a@x", Rating: 1200}}
	creds := NewMemoryStore()
	s := NewStore(api, creds)
	evs := collect(s)

	id, err := s.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.Username != "alice" || id.Rating != 1200 {
		t.Fatalf("identity=%+v", id)
	}
	if got := id.Header(); got != "alice (1200)" {
		t.Fatalf("header=%q", got)
	}
	if s.Token() != "tok-1" {
		t.Fatalf("token=%q", s.Token())
	}
	if stored, _ := creds.Load(context.Background()); stored != "tok-1" {
		t.Fatalf("stored=%q", stored)
	}
	if len(*evs) != 2 || (*evs)[0].Kind != EventCredential || (*evs)[1].Kind != EventIdentity {
		t.Fatalf("events=%v", *evs)
	}
}

func TestLoginRejectedIsAuthError(t *testing.T) {
	api := &fakeAPI{loginErr: apiErr(401, "Bad username or password")}
	creds := NewMemoryStore()
	s := NewStore(api, creds)

	_, err := s.Login(context.Background(), "alice", "wrong")
	if !chessdto.IsKind(err, chessdto.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if chessdto.UserMessage(err) != "Bad username or password" {
		t.Fatalf("message=%q", chessdto.UserMessage(err))
	}
	if s.Authenticated() {
		t.Fatalf("should not be authenticated")
	}
	if stored, _ := creds.Load(context.Background()); stored != "" {
		t.Fatalf("credential stored after failed login")
	}
}

func TestLoginRequiresFieldsBeforeNetwork(t *testing.T) {
	api := &fakeAPI{token: "tok"}
	s := NewStore(api, nil)
	if _, err := s.Login(context.Background(), " ", "pw"); !chessdto.IsKind(err, chessdto.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if api.logins != 0 {
		t.Fatalf("login called %d times", api.logins)
	}
}

func TestLoginTransportErrorPassesThrough(t *testing.T) {
	api := &fakeAPI{loginErr: &chessdto.DomainError{Kind: chessdto.KindTransport, Err: errors.New("dial")}}
	s := NewStore(api, nil)
	_, err := s.Login(context.Background(), "alice", "pw")
	if !chessdto.IsKind(err, chessdto.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestLoginKeepsSessionWhenProfileUnavailable(t *testing.T) {
	api := &fakeAPI{token: "tok-1", profileErr: &chessdto.DomainError{Kind: chessdto.KindTransport, Err: errors.New("refused")}}
	creds := NewMemoryStore()
	s := NewStore(api, creds)

	id, err := s.Login(context.Background(), "alice", "pw")
	if id != nil || !chessdto.IsKind(err, chessdto.KindTransport) {
		t.Fatalf("id=%+v err=%v", id, err)
	}
	if msg := chessdto.UserMessage(err); !strings.Contains(msg, "signed in") || !strings.Contains(msg, "whoami") {
		t.Fatalf("message=%q", msg)
	}
	if !s.Authenticated() || s.Token() != "tok-1" || s.Identity() != nil {
		t.Fatalf("token=%q identity=%+v", s.Token(), s.Identity())
	}
	if stored, _ := creds.Load(context.Background()); stored != "tok-1" {
		t.Fatalf("stored=%q", stored)
	}

	api.mu.Lock()
	api.profileErr = nil
	api.profile = &chessdto.Identity{Username: "alice", Rating: 1200}
	api.mu.Unlock()
	if id, err := s.RefreshIdentity(context.Background()); err != nil || id.Username != "alice" {
		t.Fatalf("refresh: %+v %v", id, err)
	}
}

func TestLoginProfileRejectedLogsOut(t *testing.T) {
	api := &fakeAPI{token: "tok-1", profileErr: apiErr(401, "Token has expired")}
	s := NewStore(api, NewMemoryStore())

	_, err := s.Login(context.Background(), "alice", "pw")
	if !chessdto.IsKind(err, chessdto.KindAuth) || strings.Contains(chessdto.UserMessage(err), "whoami") {
		t.Fatalf("err=%v", err)
	}
	if s.Authenticated() {
		t.Fatalf("should not be authenticated")
	}
}

func TestRegisterValidation(t *testing.T) {
	api := &fakeAPI{}
	s := NewStore(api, nil)
	cases := []chessdto.RegisterRequest{
		{Username: "", Email: "a@x", Password: "pw"},
		{Username: "bob", Email: "nope", Password: "pw"},
		{Username: "bob", Email: "b@x", Password: ""},
	}
	for _, req := range cases {
		if err := s.Register(context.Background(), req); !chessdto.IsKind(err, chessdto.KindValidation) {
			t.Fatalf("%+v: expected validation error, got %v", req, err)
		}
	}
	if len(api.registered) != 0 {
		t.Fatalf("api called for invalid input")
	}
}

func TestRegisterServerRejectionIsValidationError(t *testing.T) {
	api := &fakeAPI{registerErr: apiErr(409, "User already exists")}
	s := NewStore(api, nil)
	err := s.Register(context.Background(), chessdto.RegisterRequest{Username: "bob", Email: "b@x", Password: "pw"})
	if !chessdto.IsKind(err, chessdto.KindValidation) || chessdto.UserMessage(err) != "User already exists" {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Authenticated() {
		t.Fatalf("register must not authenticate")
	}
}

func TestRestoreLoadsIdentity(t *testing.T) {
	api := &fakeAPI{profile: &chessdto.Identity{Username: "alice", Rating: 1200}}
	creds := NewMemoryStore()
	_ = creds.Save(context.Background(), "saved")
	s := NewStore(api, creds)

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.Token() != "saved" || s.Identity() == nil || s.Identity().Username != "alice" {
		t.Fatalf("token=%q identity=%+v", s.Token(), s.Identity())
	}
}

func TestRestoreSelfHealsOnRejectedCredential(t *testing.T) {
	api := &fakeAPI{profileErr: apiErr(401, "Token has expired")}
	creds := NewMemoryStore()
	_ = creds.Save(context.Background(), "stale")
	s := NewStore(api, creds)
	evs := collect(s)

	err := s.Restore(context.Background())
	if !chessdto.IsKind(err, chessdto.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if s.Authenticated() || s.Identity() != nil {
		t.Fatalf("store should be logged out")
	}
	if stored, _ := creds.Load(context.Background()); stored != "" {
		t.Fatalf("storage not cleared: %q", stored)
	}
	last := (*evs)[len(*evs)-1]
	if last.Kind != EventLoggedOut {
		t.Fatalf("last event=%v", last.Kind)
	}
}

func TestRestoreKeepsCredentialOnNetworkFailure(t *testing.T) {
	api := &fakeAPI{profileErr: &chessdto.DomainError{Kind: chessdto.KindTransport, Err: errors.New("refused")}}
	creds := NewMemoryStore()
	_ = creds.Save(context.Background(), "saved")
	s := NewStore(api, creds)

	if err := s.Restore(context.Background()); !chessdto.IsKind(err, chessdto.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if s.Token() != "saved" {
		t.Fatalf("credential dropped on network failure")
	}
}

func TestRestoreDiscardsExpiredJWTWithoutNetwork(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{profile: &chessdto.Identity{Username: "alice"}}
	creds := NewMemoryStore()
	_ = creds.Save(context.Background(), signed(t, now.Add(-time.Minute)))
	s := NewStore(api, creds, WithClock(func() time.Time { return now }))

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.Authenticated() {
		t.Fatalf("expired token restored")
	}
	if api.profiles != 0 {
		t.Fatalf("profile fetched for expired token")
	}
	if stored, _ := creds.Load(context.Background()); stored != "" {
		t.Fatalf("expired token left in storage")
	}
}

func TestRestoreAcceptsUnexpiredJWT(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{profile: &chessdto.Identity{Username: "alice"}}
	creds := NewMemoryStore()
	tok := signed(t, now.Add(time.Hour))
	_ = creds.Save(context.Background(), tok)
	s := NewStore(api, creds, WithClock(func() time.Time { return now }))

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.Token() != tok || api.profiles != 1 {
		t.Fatalf("token=%q profiles=%d", s.Token(), api.profiles)
	}
}

func TestRestoreWithoutCredentialIsNoop(t *testing.T) {
	api := &fakeAPI{}
	s := NewStore(api, NewMemoryStore())
	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if api.profiles != 0 || s.Authenticated() {
		t.Fatalf("unexpected activity")
	}
}

func TestLogoutClearsSynchronously(t *testing.T) {
	api := &fakeAPI{token: "tok", profile: &chessdto.Identity{Username: "alice"}}
	creds := NewMemoryStore()
	s := NewStore(api, creds)
	if _, err := s.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	evs := collect(s)

	s.Logout(context.Background())
	if s.Token() != "" || s.Identity() != nil {
		t.Fatalf("state not cleared")
	}
	if stored, _ := creds.Load(context.Background()); stored != "" {
		t.Fatalf("storage not cleared")
	}
	if len(*evs) != 1 || (*evs)[0].Kind != EventLoggedOut || (*evs)[0].Reason != "logout" {
		t.Fatalf("events=%v", *evs)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	api := &fakeAPI{token: "tok", profile: &chessdto.Identity{Username: "alice"}}
	s := NewStore(api, nil)
	if _, err := s.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	evs := collect(s)
	s.Invalidate(context.Background(), "move rejected")
	s.Invalidate(context.Background(), "move rejected")
	if len(*evs) != 1 {
		t.Fatalf("expected one logout event, got %d", len(*evs))
	}
}

func TestRemoveCallback(t *testing.T) {
	s := NewStore(&fakeAPI{token: "t", profile: &chessdto.Identity{Username: "a"}}, nil)
	n := 0
	id := s.OnChange(func(Event) { n++ })
	s.RemoveCallback(id)
	if _, err := s.Login(context.Background(), "a", "b"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if n != 0 {
		t.Fatalf("removed callback fired %d times", n)
	}
}
