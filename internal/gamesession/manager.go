// Package gamesession owns the single current game. One goroutine holds
// all mutable state and drains an inbox; API responses and live pushes are
// posted to that inbox, never applied directly.
package gamesession

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-chess-client/internal/livechan"
	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

const (
	defaultCallTimeout = 15 * time.Second
	inboxSize          = 64
)

type Manager struct {
	api         API
	sub         livechan.Subscriber
	logger      *zap.Logger
	invalidate  Invalidator
	callTimeout time.Duration

	inbox  chan msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	// owned by the loop goroutine
	state      *chessdto.GameState
	lastMove   string
	evaluation *chessdto.Evaluation
	suggestion string
	pending    *Pending
	notice     string
	live       livechan.State
	epoch      uint64
	// derivedSeq advances on every move attempt and every position change.
	// A suggestion is only stored for the position it was requested on.
	derivedSeq uint64

	viewMu sync.RWMutex
	view   View

	cbM      sync.RWMutex
	nextCbID int
	cbs      []callbackEntry
}

type callbackEntry struct {
	id int
	fn ChangeCallback
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithInvalidator(fn Invalidator) Option {
	return func(m *Manager) { m.invalidate = fn }
}

func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

// New starts the session goroutine. Close stops it.
func New(parent context.Context, api API, sub livechan.Subscriber, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		api:         api,
		sub:         sub,
		logger:      zap.NewNop(),
		callTimeout: defaultCallTimeout,
		inbox:       make(chan msg, inboxSize),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.loop()
	return m
}

func (m *Manager) Close() {
	m.cancel()
	<-m.done
	m.wg.Wait()
}

// Snapshot returns the latest published view.
func (m *Manager) Snapshot() View {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.view.clone()
}

// OnChange registers cb for every published view. Callbacks run on the
// session goroutine and must not block on Manager calls.
func (m *Manager) OnChange(cb ChangeCallback) int {
	if cb == nil {
		return 0
	}
	m.cbM.Lock()
	defer m.cbM.Unlock()
	m.nextCbID++
	m.cbs = append(m.cbs, callbackEntry{id: m.nextCbID, fn: cb})
	return m.nextCbID
}

func (m *Manager) RemoveCallback(id int) {
	m.cbM.Lock()
	defer m.cbM.Unlock()
	for i, e := range m.cbs {
		if e.id == id {
			m.cbs = append(m.cbs[:i], m.cbs[i+1:]...)
			return
		}
	}
}

// OpenGames lists joinable games. Nothing is staged.
func (m *Manager) OpenGames(ctx context.Context) ([]chessdto.OpenGameSummary, error) {
	games, err := m.api.OpenGames(ctx)
	if err != nil {
		m.checkCredential(err, "open games rejected")
		return nil, err
	}
	return games, nil
}

// CreateGame creates a game, makes it current and subscribes to it.
func (m *Manager) CreateGame(ctx context.Context, playAs chessdto.Color) (string, error) {
	if playAs != chessdto.White && playAs != chessdto.Black {
		return "", &chessdto.DomainError{Kind: chessdto.KindValidation, Message: "color must be white or black"}
	}
	gs, err := m.api.CreateGame(ctx, playAs)
	if err != nil {
		m.logger.Info("create_game_failed", zap.Error(err))
		m.checkCredential(err, "create game rejected")
		return "", err
	}
	if err := m.adopt(ctx, gs, "create"); err != nil {
		return "", err
	}
	return gs.GameID, nil
}

// JoinGame joins gameID, makes it current and subscribes to it.
func (m *Manager) JoinGame(ctx context.Context, gameID string) error {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return &chessdto.DomainError{Kind: chessdto.KindValidation, Message: "game id is required"}
	}
	gs, err := m.api.JoinGame(ctx, gameID)
	if err != nil {
		m.logger.Info("join_game_failed", zap.String("game_id", gameID), zap.Error(err))
		m.checkCredential(err, "join game rejected")
		return err
	}
	return m.adopt(ctx, gs, "join")
}

func (m *Manager) adopt(ctx context.Context, gs *chessdto.GameState, source string) error {
	reply := make(chan error, 1)
	if err := m.post(ctx, adoptMsg{state: gs, source: source, reply: reply}); err != nil {
		return err
	}
	return m.await(ctx, reply)
}

// SubmitMove starts a move. A nil error means the move was accepted for
// processing; completion is observed through the Pending or OnChange.
func (m *Manager) SubmitMove(ctx context.Context, move string) (*Pending, error) {
	move = strings.TrimSpace(move)
	if move == "" {
		return nil, ErrEmptyMove
	}
	return m.begin(ctx, ActionMove, move)
}

func (m *Manager) RequestRematch(ctx context.Context) (*Pending, error) {
	return m.begin(ctx, ActionRematch, "")
}

func (m *Manager) AcceptRematch(ctx context.Context) (*Pending, error) {
	return m.begin(ctx, ActionAcceptRematch, "")
}

func (m *Manager) begin(ctx context.Context, action Action, move string) (*Pending, error) {
	p := newPending(action, "")
	reply := make(chan error, 1)
	if err := m.post(ctx, beginMsg{action: action, move: move, pending: p, reply: reply}); err != nil {
		return nil, err
	}
	if err := m.await(ctx, reply); err != nil {
		return nil, err
	}
	return p, nil
}

// RequestSuggestion asks the server for a move hint for the current game.
// A hint that arrives after the position changed is dropped and the call
// returns ErrDiscarded.
func (m *Manager) RequestSuggestion(ctx context.Context) (string, error) {
	reply := make(chan suggestTicket, 1)
	if err := m.post(ctx, suggestBegin{reply: reply}); err != nil {
		return "", err
	}
	var t suggestTicket
	select {
	case t = <-reply:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-m.done:
		return "", ErrClosed
	}
	if t.err != nil {
		return "", t.err
	}
	text, err := m.api.Suggest(ctx, t.gameID)
	if err != nil {
		m.logger.Info("suggest_failed", zap.String("game_id", t.gameID), zap.Error(err))
		m.checkCredential(err, "suggest rejected")
		return "", err
	}
	stored := make(chan bool, 1)
	if err := m.post(ctx, suggestResult{epoch: t.epoch, seq: t.seq, gameID: t.gameID, text: text, reply: stored}); err != nil {
		return "", err
	}
	select {
	case ok := <-stored:
		if !ok {
			return "", ErrDiscarded
		}
	case <-ctx.Done():
		return "", ctx.Err()
	case <-m.done:
		return "", ErrClosed
	}
	return text, nil
}

// LeaveGame unsubscribes and clears the current game.
func (m *Manager) LeaveGame(ctx context.Context) error {
	reply := make(chan struct{})
	if err := m.post(ctx, leaveMsg{wait: true, reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// Abandon clears the current game without waiting for the server.
func (m *Manager) Abandon() {
	_ = m.post(context.Background(), leaveMsg{})
}

// HandlePush feeds a game_update from the live channel.
func (m *Manager) HandlePush(update *chessdto.MoveOutcome) {
	if update == nil {
		return
	}
	_ = m.post(context.Background(), pushMsg{update: update})
}

// Resync runs the one-time state fetch after the channel rejoined gameID.
func (m *Manager) Resync(gameID string) {
	_ = m.post(context.Background(), resyncMsg{gameID: gameID})
}

func (m *Manager) Notify(text string) {
	_ = m.post(context.Background(), noticeMsg{text: text})
}

func (m *Manager) ClearNotice() {
	_ = m.post(context.Background(), noticeMsg{})
}

func (m *Manager) SetLiveState(state livechan.State) {
	_ = m.post(context.Background(), liveMsg{state: state})
}

func (m *Manager) post(ctx context.Context, v msg) error {
	select {
	case m.inbox <- v:
		return nil
	case <-m.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	m.publish()
	for {
		select {
		case <-m.ctx.Done():
			if m.pending != nil {
				m.pending.resolve(ErrClosed)
				m.pending = nil
			}
			return
		case v := <-m.inbox:
			m.handle(v)
		}
	}
}

func (m *Manager) handle(v msg) {
	switch mm := v.(type) {
	case adoptMsg:
		mm.reply <- m.onAdopt(mm.state, mm.source)
	case beginMsg:
		mm.reply <- m.onBegin(mm)
	case actionResult:
		m.onActionResult(mm)
	case suggestBegin:
		mm.reply <- m.onSuggestBegin()
	case suggestResult:
		fresh := m.current(mm.epoch, mm.gameID) && mm.seq == m.derivedSeq
		if fresh {
			m.suggestion = mm.text
			m.publish()
		} else {
			m.logger.Debug("suggest_discard", zap.String("game_id", mm.gameID))
		}
		if mm.reply != nil {
			mm.reply <- fresh
		}
	case fetchResult:
		m.onFetchResult(mm)
	case pushMsg:
		m.onPush(mm.update)
	case resyncMsg:
		if m.state != nil && m.state.GameID == mm.gameID {
			m.logger.Debug("game_resync", zap.String("game_id", mm.gameID))
			m.startFetch()
		}
	case leaveMsg:
		m.onLeave(mm.wait, "")
		if mm.reply != nil {
			close(mm.reply)
		}
	case noticeMsg:
		if m.notice != mm.text {
			m.notice = mm.text
			m.publish()
		}
	case liveMsg:
		if m.live != mm.state {
			m.live = mm.state
			m.publish()
		}
	}
}

func (m *Manager) onAdopt(gs *chessdto.GameState, source string) error {
	if err := gs.Validate(); err != nil {
		m.logger.Warn("game_state_rejected", zap.String("source", source), zap.Error(err))
		m.notice = "server sent an invalid game state"
		m.publish()
		return &chessdto.DomainError{Kind: chessdto.KindAPI, Message: m.notice, Err: err}
	}
	m.bumpEpoch()
	m.state = gs.Clone()
	m.lastMove, m.suggestion, m.notice = "", "", ""
	m.evaluation = nil
	m.logger.Info("game_adopt",
		zap.String("game_id", gs.GameID),
		zap.String("source", source),
		zap.String("status", string(gs.Status)),
		zap.Uint64("epoch", m.epoch),
	)
	if err := m.sub.Subscribe(m.ctx, gs.GameID); err != nil {
		m.logger.Warn("game_subscribe_failed", zap.String("game_id", gs.GameID), zap.Error(err))
	}
	m.startFetch()
	m.publish()
	return nil
}

func (m *Manager) onBegin(b beginMsg) error {
	if m.state == nil {
		return ErrNoActiveGame
	}
	if m.pending != nil {
		return ErrActionPending
	}
	switch b.action {
	case ActionMove:
		if m.state.Status != chessdto.StatusOngoing {
			return ErrGameNotOngoing
		}
		m.evaluation = nil
		m.suggestion = ""
		m.derivedSeq++
	case ActionRematch, ActionAcceptRematch:
		if !m.state.Status.Terminal() {
			return ErrGameNotFinished
		}
	default:
		return fmt.Errorf("unknown action %q", b.action)
	}

	p := b.pending
	p.GameID = m.state.GameID
	m.pending = p
	m.notice = ""
	epoch := m.epoch
	m.logger.Info("game_action", zap.String("action", string(b.action)), zap.String("game_id", p.GameID), zap.String("move", b.move))
	m.publish()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.ctx, m.callTimeout)
		defer cancel()
		out, err := m.call(ctx, b.action, p.GameID, b.move)
		_ = m.post(m.ctx, actionResult{epoch: epoch, pending: p, outcome: out, err: err})
	}()
	return nil
}

func (m *Manager) call(ctx context.Context, action Action, gameID, move string) (*chessdto.MoveOutcome, error) {
	var (
		gs  *chessdto.GameState
		err error
	)
	switch action {
	case ActionMove:
		return m.api.Move(ctx, gameID, move)
	case ActionRematch:
		gs, err = m.api.RequestRematch(ctx, gameID)
	case ActionAcceptRematch:
		gs, err = m.api.AcceptRematch(ctx, gameID)
	}
	if err != nil {
		return nil, err
	}
	if gs == nil {
		return nil, &chessdto.DomainError{Kind: chessdto.KindAPI, Message: "empty game state"}
	}
	return &chessdto.MoveOutcome{GameState: *gs}, nil
}

func (m *Manager) onActionResult(r actionResult) {
	p := r.pending
	if r.epoch != m.epoch || m.pending != p || m.state == nil || m.state.GameID != p.GameID {
		m.logger.Debug("action_discard", zap.String("action", string(p.Action)), zap.String("game_id", p.GameID))
		p.resolve(ErrDiscarded)
		return
	}
	m.pending = nil

	if r.err == nil && r.outcome == nil {
		r.err = &chessdto.DomainError{Kind: chessdto.KindAPI, Message: "empty response"}
	}
	if r.err == nil {
		if verr := r.outcome.GameState.Validate(); verr != nil {
			m.logger.Warn("game_state_rejected", zap.String("source", string(p.Action)), zap.Error(verr))
			r.err = &chessdto.DomainError{Kind: chessdto.KindAPI, Message: "server sent an invalid game state", Err: verr}
		} else if r.outcome.GameID != p.GameID {
			r.err = &chessdto.DomainError{Kind: chessdto.KindAPI, Message: "response for a different game"}
		}
	}
	if r.err != nil {
		m.notice = chessdto.UserMessage(r.err)
		m.logger.Info(string(p.Action)+"_failed", zap.String("game_id", p.GameID), zap.Error(r.err))
		m.checkCredential(r.err, string(p.Action)+" rejected")
		m.publish()
		p.resolve(r.err)
		return
	}

	out := r.outcome
	m.replaceState(&out.GameState)
	switch p.Action {
	case ActionMove:
		m.lastMove = out.LastMove
		m.evaluation = cloneEval(out.Evaluation)
	case ActionAcceptRematch:
		m.lastMove = ""
		m.evaluation = nil
		m.suggestion = ""
	}
	m.logger.Info(string(p.Action)+"_applied",
		zap.String("game_id", p.GameID),
		zap.String("status", string(out.Status)),
		zap.String("turn", string(out.Turn)),
	)
	m.publish()
	p.resolve(nil)
}

func (m *Manager) onSuggestBegin() suggestTicket {
	if m.state == nil {
		return suggestTicket{err: ErrNoActiveGame}
	}
	if m.state.Status != chessdto.StatusOngoing {
		return suggestTicket{err: ErrGameNotOngoing}
	}
	return suggestTicket{epoch: m.epoch, seq: m.derivedSeq, gameID: m.state.GameID}
}

func (m *Manager) onPush(u *chessdto.MoveOutcome) {
	if m.state == nil || u.GameID != m.state.GameID {
		m.logger.Debug("push_ignored", zap.String("game_id", u.GameID))
		return
	}
	if err := u.GameState.Validate(); err != nil {
		m.logger.Warn("game_state_rejected", zap.String("source", "push"), zap.Error(err))
		m.notice = "server sent an invalid game state"
		m.publish()
		return
	}
	if u.GameState.OlderThan(m.state) {
		m.logger.Info("push_discard_stale",
			zap.String("game_id", u.GameID),
			zap.String("push_at", u.LastMoveAt),
			zap.String("held_at", m.state.LastMoveAt),
		)
		return
	}
	m.replaceState(&u.GameState)
	m.lastMove = u.LastMove
	m.logger.Debug("push_applied", zap.String("game_id", u.GameID), zap.String("status", string(u.Status)))
	m.publish()
}

func (m *Manager) startFetch() {
	epoch, gameID := m.epoch, m.state.GameID
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.ctx, m.callTimeout)
		defer cancel()
		gs, err := m.api.GameState(ctx, gameID)
		_ = m.post(m.ctx, fetchResult{epoch: epoch, gameID: gameID, state: gs, err: err})
	}()
}

func (m *Manager) onFetchResult(r fetchResult) {
	if !m.current(r.epoch, r.gameID) {
		return
	}
	if r.err != nil {
		if chessdto.IsKind(r.err, chessdto.KindGone) {
			m.logger.Info("game_gone", zap.String("game_id", r.gameID), zap.Int("status", chessdto.StatusOf(r.err)))
			m.onLeave(false, "game is no longer available")
			return
		}
		m.logger.Warn("game_fetch_failed", zap.String("game_id", r.gameID), zap.Error(r.err))
		return
	}
	if r.state == nil {
		return
	}
	if err := r.state.Validate(); err != nil {
		m.logger.Warn("game_state_rejected", zap.String("source", "fetch"), zap.Error(err))
		return
	}
	if r.state.GameID != r.gameID || r.state.OlderThan(m.state) {
		return
	}
	m.replaceState(r.state)
	m.publish()
}

func (m *Manager) onLeave(wait bool, notice string) {
	if m.state == nil {
		return
	}
	gameID := m.state.GameID
	m.bumpEpoch()
	m.state = nil
	m.lastMove, m.suggestion, m.notice = "", "", notice
	m.evaluation = nil
	m.logger.Info("game_leave", zap.String("game_id", gameID), zap.Bool("wait", wait))

	if wait {
		if err := m.sub.Unsubscribe(m.ctx, gameID); err != nil {
			m.logger.Debug("game_unsubscribe_failed", zap.String("game_id", gameID), zap.Error(err))
		}
	} else {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.callTimeout)
			defer cancel()
			_ = m.sub.Unsubscribe(ctx, gameID)
		}()
	}
	m.publish()
}

// replaceState installs gs as the current snapshot.
func (m *Manager) replaceState(gs *chessdto.GameState) {
	if m.state == nil || m.state.FEN != gs.FEN || m.state.LastMoveAt != gs.LastMoveAt {
		m.derivedSeq++
	}
	m.state = gs.Clone()
}

// bumpEpoch invalidates every completion issued under the previous game.
func (m *Manager) bumpEpoch() {
	m.epoch++
	if m.pending != nil {
		m.pending.resolve(ErrDiscarded)
		m.pending = nil
	}
}

func (m *Manager) current(epoch uint64, gameID string) bool {
	return epoch == m.epoch && m.state != nil && m.state.GameID == gameID
}

func (m *Manager) checkCredential(err error, reason string) {
	if m.invalidate == nil || chessdto.StatusOf(err) != http.StatusUnauthorized {
		return
	}
	go m.invalidate(context.Background(), reason)
}

func (m *Manager) publish() {
	v := View{
		Game:       m.state.Clone(),
		LastMove:   m.lastMove,
		Evaluation: cloneEval(m.evaluation),
		Suggestion: m.suggestion,
		Notice:     m.notice,
		Live:       m.live,
		Epoch:      m.epoch,
	}
	if m.pending != nil {
		v.Pending = m.pending.Action
	}
	m.viewMu.Lock()
	m.view = v
	m.viewMu.Unlock()

	m.cbM.RLock()
	list := make([]ChangeCallback, 0, len(m.cbs))
	for _, e := range m.cbs {
		list = append(list, e.fn)
	}
	m.cbM.RUnlock()
	for _, fn := range list {
		fn(v.clone())
	}
}

func cloneEval(e *chessdto.Evaluation) *chessdto.Evaluation {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}
