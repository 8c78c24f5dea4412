package clientbuilder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/park285/Cheese-chess-client/internal/config"
	"github.com/park285/Cheese-chess-client/internal/livechan"
	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

type fakeServer struct {
	mu    sync.Mutex
	game  chessdto.GameState
	moves int
}

func (fs *fakeServer) setGame(gs chessdto.GameState) {
	fs.mu.Lock()
	fs.game = gs
	fs.mu.Unlock()
}

func (fs *fakeServer) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "tok-alice"})
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-alice" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
			return
		}
		writeJSON(w, http.StatusOK, chessdto.Identity{Username: "alice", Rating: 1200})
	})
	game := func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		gs := fs.game
		fs.mu.Unlock()
		writeJSON(w, http.StatusOK, gs)
	}
	mux.HandleFunc("/join_game", game)
	mux.HandleFunc("/game_state/", game)
	mux.HandleFunc("/move", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.moves++
		fs.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
	})
	// The live endpoint refuses the websocket upgrade.
	mux.HandleFunc("/socket.io/", http.NotFound)
	return mux
}

func newDeps(t *testing.T) (*Deps, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	cfg := &config.AppConfig{
		APIURL:                srv.URL,
		LiveURL:               srv.URL + "/socket.io/?EIO=4&transport=websocket",
		HTTPTimeout:           2 * time.Second,
		LiveReconnectAttempts: 1,
		LiveReconnectDelay:    5 * time.Millisecond,
		CredentialBackend:     config.CredentialMemory,
	}
	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d, fs
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func login(t *testing.T, d *Deps) {
	t.Helper()
	id, err := d.Session.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if d.Formatter.Identity(id) != "alice (1200)" {
		t.Fatalf("identity = %q", d.Formatter.Identity(id))
	}
}

func TestLoginConnectsLiveAndFailureBecomesNotice(t *testing.T) {
	d, _ := newDeps(t)
	login(t, d)

	waitFor(t, "live failure notice", func() bool {
		v := d.Core.Snapshot()
		return v.Live == livechan.StateFailed && v.Notice == liveFailedNotice
	})

	d.Session.Logout(context.Background())
	waitFor(t, "logout teardown", func() bool {
		v := d.Core.Snapshot()
		return v.Live == livechan.StateDisconnected && v.Notice == "" && d.Live.State() == livechan.StateDisconnected
	})
}

func TestTerminalGameIsArchived(t *testing.T) {
	d, fs := newDeps(t)
	login(t, d)

	fs.setGame(chessdto.GameState{
		GameID:      "g1",
		FEN:         "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
		Status:      chessdto.StatusCheckmate,
		Result:      chessdto.StringPtr(chessdto.ResultBlackWins),
		Turn:        chessdto.White,
		PlayerWhite: chessdto.StringPtr("bob"),
		PlayerBlack: chessdto.StringPtr("alice"),
		LastMoveAt:  "2026-10-01T09:30:00Z",
	})
	if err := d.Core.JoinGame(context.Background(), "g1"); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	waitFor(t, "archived result", func() bool {
		recs, err := d.Archive.Recent(context.Background(), "alice", 10)
		return err == nil && len(recs) == 1 && recs[0].Outcome == chessdto.OutcomeWin && recs[0].Opponent() == "bob"
	})
}

func TestRejectedMoveSignsOut(t *testing.T) {
	d, fs := newDeps(t)
	login(t, d)

	fs.setGame(chessdto.GameState{
		GameID:      "g1",
		FEN:         "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		Status:      chessdto.StatusOngoing,
		Turn:        chessdto.White,
		PlayerWhite: chessdto.StringPtr("alice"),
		PlayerBlack: chessdto.StringPtr("bob"),
		LastMoveAt:  "2026-10-01T09:30:00Z",
	})
	if err := d.Core.JoinGame(context.Background(), "g1"); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	p, err := d.Core.SubmitMove(context.Background(), "e2e4")
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Wait(ctx); chessdto.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("move err = %v", err)
	}

	waitFor(t, "sign out", func() bool {
		v := d.Core.Snapshot()
		return !d.Session.Authenticated() && v.Game == nil && v.Notice == "signed out: move rejected"
	})
	fs.mu.Lock()
	moves := fs.moves
	fs.mu.Unlock()
	if moves != 1 {
		t.Fatalf("move should not be retried, got %d calls", moves)
	}
}

func TestStartIsIdempotentAndRestoresNothing(t *testing.T) {
	d, _ := newDeps(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if d.Session.Authenticated() || d.Viewer() != "" {
		t.Fatalf("memory backend should start signed out")
	}
}
