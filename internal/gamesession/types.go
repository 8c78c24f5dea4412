package gamesession

import (
	"context"
	"sync"

	"github.com/park285/Cheese-chess-client/internal/livechan"
	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

// Precondition and lifecycle errors.
var (
	ErrNoActiveGame    = errf("no active game")
	ErrGameNotOngoing  = errf("game is not in progress")
	ErrGameNotFinished = errf("game is not finished")
	ErrActionPending   = errf("another action is still in progress")
	ErrDiscarded       = errf("game changed before the response arrived")
	ErrEmptyMove       = errf("move is required")
	ErrClosed          = errf("game session closed")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// API is the remote surface the core drives.
type API interface {
	OpenGames(ctx context.Context) ([]chessdto.OpenGameSummary, error)
	CreateGame(ctx context.Context, playAs chessdto.Color) (*chessdto.GameState, error)
	JoinGame(ctx context.Context, gameID string) (*chessdto.GameState, error)
	GameState(ctx context.Context, gameID string) (*chessdto.GameState, error)
	Move(ctx context.Context, gameID, move string) (*chessdto.MoveOutcome, error)
	Suggest(ctx context.Context, gameID string) (string, error)
	RequestRematch(ctx context.Context, gameID string) (*chessdto.GameState, error)
	AcceptRematch(ctx context.Context, gameID string) (*chessdto.GameState, error)
}

// Invalidator is called when the server rejects the credential during an action.
type Invalidator func(ctx context.Context, reason string)

type Action string

const (
	ActionNone          Action = ""
	ActionMove          Action = "move"
	ActionRematch       Action = "rematch"
	ActionAcceptRematch Action = "accept_rematch"
)

// View is an immutable copy of everything the core exposes.
type View struct {
	Game       *chessdto.GameState
	LastMove   string
	Evaluation *chessdto.Evaluation
	Suggestion string
	Pending    Action
	Notice     string
	Live       livechan.State
	Epoch      uint64
}

func (v View) Active() bool { return v.Game != nil }

func (v View) GameID() string {
	if v.Game == nil {
		return ""
	}
	return v.Game.GameID
}

func (v View) clone() View {
	cp := v
	cp.Game = v.Game.Clone()
	if v.Evaluation != nil {
		e := *v.Evaluation
		cp.Evaluation = &e
	}
	return cp
}

type ChangeCallback func(View)

// Pending is the accepted-for-processing handle of a two-phase action.
// It resolves exactly once: nil on success, the API error on failure,
// ErrDiscarded when the game changed first.
type Pending struct {
	Action Action
	GameID string

	once sync.Once
	done chan struct{}
	err  error
}

func newPending(action Action, gameID string) *Pending {
	return &Pending{Action: action, GameID: gameID, done: make(chan struct{})}
}

func (p *Pending) Done() <-chan struct{} { return p.done }

// Err is valid after Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// inbox messages

type msg interface{ isSessionMsg() }

type adoptMsg struct {
	state  *chessdto.GameState
	source string
	reply  chan error
}

type beginMsg struct {
	action  Action
	move    string
	pending *Pending
	reply   chan error
}

type actionResult struct {
	epoch   uint64
	pending *Pending
	outcome *chessdto.MoveOutcome
	err     error
}

type suggestBegin struct {
	reply chan suggestTicket
}

type suggestTicket struct {
	epoch  uint64
	seq    uint64
	gameID string
	err    error
}

type suggestResult struct {
	epoch  uint64
	seq    uint64
	gameID string
	text   string
	reply  chan bool
}

type fetchResult struct {
	epoch  uint64
	gameID string
	state  *chessdto.GameState
	err    error
}

type pushMsg struct{ update *chessdto.MoveOutcome }

type resyncMsg struct{ gameID string }

type leaveMsg struct {
	wait  bool
	reply chan struct{}
}

type noticeMsg struct{ text string }

type liveMsg struct{ state livechan.State }

func (adoptMsg) isSessionMsg()      {}
func (beginMsg) isSessionMsg()      {}
func (actionResult) isSessionMsg()  {}
func (suggestBegin) isSessionMsg()  {}
func (suggestResult) isSessionMsg() {}
func (fetchResult) isSessionMsg()   {}
func (pushMsg) isSessionMsg()       {}
func (resyncMsg) isSessionMsg()     {}
func (leaveMsg) isSessionMsg()      {}
func (noticeMsg) isSessionMsg()     {}
func (liveMsg) isSessionMsg()       {}
