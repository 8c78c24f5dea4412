package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-chess-client/internal/clientbuilder"
	appcfg "github.com/park285/Cheese-chess-client/internal/config"
	"github.com/park285/Cheese-chess-client/internal/gamesession"
	"github.com/park285/Cheese-chess-client/internal/obslog"
	"github.com/park285/Cheese-chess-client/internal/presenter"
	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

const commandTimeout = 20 * time.Second

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	deps, err := clientbuilder.New(cfg, logger)
	if err != nil {
		log.Fatalf("client init error: %v", err)
	}

	out := &console{w: bufio.NewWriter(os.Stdout)}
	pres := presenter.NewPresenter(deps.Formatter, deps.Renderer, out.Println, func(gameID string, png []byte) error {
		path, err := writeBoard(cfg.BoardOutputDir, gameID, png)
		if err != nil {
			return err
		}
		return out.Println(deps.Formatter.BoardSaved(path))
	})
	app := &app{deps: deps, pres: pres, out: out, logger: logger}
	deps.Core.OnChange(app.onView)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := deps.Start(ctx); err != nil {
		_ = out.Println(deps.Formatter.Error(err))
	}
	_ = out.Println(deps.Formatter.Identity(deps.Session.Identity()))
	_ = out.Println(deps.Formatter.Help())

	app.run(ctx, os.Stdin)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := deps.Close(closeCtx); err != nil {
		logger.Warn("shutdown_error", zap.Error(err))
	}
}

type console struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (c *console) Println(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.WriteString(s + "\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *console) Prompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.w.WriteString("> ")
	_ = c.w.Flush()
}

type app struct {
	deps   *clientbuilder.Deps
	pres   *presenter.Presenter
	out    *console
	logger *zap.Logger

	mu       sync.Mutex
	lastSeen string
}

// onView prints the status block when something the player cares about changed.
func (a *app) onView(v gamesession.View) {
	sig := viewSignature(v)
	a.mu.Lock()
	changed := sig != a.lastSeen
	a.lastSeen = sig
	a.mu.Unlock()
	if !changed {
		return
	}
	_ = a.pres.View(v, a.deps.Viewer())
}

func viewSignature(v gamesession.View) string {
	parts := []string{v.Notice, v.LastMove, v.Suggestion}
	if v.Game != nil {
		parts = append(parts, v.Game.GameID, string(v.Game.Status), v.Game.FEN, v.Game.WhiteName(), v.Game.BlackName(), v.Game.RematchRequester())
	}
	if v.Evaluation != nil {
		parts = append(parts, presenter.EvaluationText(v.Evaluation))
	}
	return strings.Join(parts, "\x00")
}

func (a *app) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		a.out.Prompt()
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := a.dispatch(ctx, line); quit {
				return
			}
		}
	}
}

func (a *app) dispatch(parent context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	f := a.deps.Formatter
	core := a.deps.Core
	if needsLive(cmd) {
		a.deps.EnsureLive()
	}

	var err error
	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		err = a.out.Println(f.Help())
	case "login":
		if len(args) < 2 {
			err = a.out.Println("usage: login <user> <password>")
			break
		}
		var id *chessdto.Identity
		if id, err = a.deps.Session.Login(ctx, args[0], args[1]); err == nil {
			err = a.out.Println(f.Identity(id))
		}
	case "register":
		if len(args) < 3 {
			err = a.out.Println("usage: register <user> <email> <password>")
			break
		}
		req := chessdto.RegisterRequest{Username: args[0], Email: args[1], Password: args[2]}
		if err = a.deps.Session.Register(ctx, req); err == nil {
			err = a.out.Println(f.Registered(req.Username))
		}
	case "logout":
		a.deps.Session.Logout(ctx)
		err = a.out.Println(f.LoggedOut())
	case "whoami":
		id := a.deps.Session.Identity()
		if id == nil && a.deps.Session.Authenticated() {
			id, err = a.deps.Session.RefreshIdentity(ctx)
		}
		if err == nil {
			err = a.out.Println(f.Identity(id))
		}
	case "games":
		var games []chessdto.OpenGameSummary
		if games, err = core.OpenGames(ctx); err == nil {
			err = a.out.Println(f.OpenGames(games))
		}
	case "create":
		color := chessdto.White
		if len(args) > 0 {
			c, ok := chessdto.ParseColor(args[0])
			if !ok {
				err = a.out.Println("usage: create [white|black]")
				break
			}
			color = c
		}
		_, err = core.CreateGame(ctx, color)
	case "join":
		if len(args) < 1 {
			err = a.out.Println("usage: join <id>")
			break
		}
		err = core.JoinGame(ctx, args[0])
	case "move":
		if len(args) < 1 {
			err = a.out.Println("usage: move <uci>")
			break
		}
		_, err = core.SubmitMove(ctx, args[0])
	case "suggest":
		_, err = core.RequestSuggestion(ctx)
	case "rematch":
		_, err = core.RequestRematch(ctx)
	case "accept":
		_, err = core.AcceptRematch(ctx)
	case "leave":
		err = core.LeaveGame(ctx)
	case "status":
		err = a.pres.View(core.Snapshot(), a.deps.Viewer())
	case "board":
		v := core.Snapshot()
		if v.Game == nil {
			err = gamesession.ErrNoActiveGame
			break
		}
		err = a.pres.Board(ctx, "", v, a.deps.Viewer())
	case "history":
		limit := 10
		if len(args) > 0 {
			if n, perr := strconv.Atoi(args[0]); perr == nil && n > 0 {
				limit = n
			}
		}
		viewer := a.deps.Viewer()
		if viewer == "" {
			err = a.out.Println(f.Identity(nil))
			break
		}
		recs, herr := a.deps.Archive.Recent(ctx, viewer, limit)
		if err = herr; err == nil {
			err = a.out.Println(f.History(recs))
		}
	case "dismiss":
		core.ClearNotice()
	default:
		err = a.out.Println("Unknown command. Try 'help'.")
	}

	if err != nil {
		a.logger.Debug("command_failed", zap.String("cmd", cmd), zap.Error(err))
		_ = a.out.Println(f.Error(err))
	}
	return false
}

func needsLive(cmd string) bool {
	switch cmd {
	case "create", "join", "move", "rematch", "accept", "status":
		return true
	default:
		return false
	}
}

func writeBoard(dir, gameID string, png []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create board dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.png", sanitizeName(gameID), time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write board: %w", err)
	}
	return path, nil
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
