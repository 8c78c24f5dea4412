package livechan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-chess-client/pkg/chessdto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type updateEntry struct {
	id       int
	callback UpdateCallback
}

type stateEntry struct {
	id       int
	callback StateCallback
}

type resubscribeEntry struct {
	id       int
	callback ResubscribeCallback
}

// connSession spans one Connect..Disconnect lifetime, across reconnects.
type connSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Channel is a Socket.IO client scoped to at most one game room.
type Channel struct {
	url      string
	clientID string
	logger   *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	sess       *connSession
	state      State
	subscribed string // desired room
	joined     string // room join_game was emitted for on conn

	writeMu  sync.Mutex
	lastSeen atomic.Int64

	cbM       sync.RWMutex
	nextCbID  int
	updateCbs []updateEntry
	stateCbs  []stateEntry
	resubCbs  []resubscribeEntry

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	dialTimeout          time.Duration

	headerProvider HeaderProvider
	authProvider   func() string

	wg sync.WaitGroup
}

type Option func(*Channel)

func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReconnect bounds reconnection. maxAttempts <= 0 retries forever.
func WithReconnect(maxAttempts int, delay time.Duration) Option {
	return func(c *Channel) {
		c.maxReconnectAttempts = maxAttempts
		if delay > 0 {
			c.reconnectDelay = delay
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Channel) { c.headerProvider = h }
}

// WithAuthProvider supplies the token sent in the namespace connect packet.
func WithAuthProvider(p func() string) Option {
	return func(c *Channel) { c.authProvider = p }
}

func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:                  url,
		clientID:             uuid.NewString(),
		logger:               zap.NewNop(),
		state:                StateDisconnected,
		maxReconnectAttempts: 8,
		reconnectDelay:       500 * time.Millisecond,
		dialTimeout:          10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribed returns the game id pushes are currently delivered for.
func (c *Channel) Subscribed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// Connect starts a session. It is a no-op while one is already connecting or connected.
// A failed first dial still leaves the channel retrying in the background.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return nil
	}
	sctx, cancel := context.WithCancel(context.Background())
	sess := &connSession{ctx: sctx, cancel: cancel}
	c.sess = sess
	c.state = StateConnecting
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	if err := c.dial(ctx, sess); err != nil {
		c.logger.Warn("live_connect_error", zap.String("url", c.url), zap.Error(err))
		c.scheduleReconnect(sess)
		return err
	}
	return nil
}

// Disconnect ends the session and drops the subscription. Nothing is delivered afterwards.
func (c *Channel) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	sess, conn, joined, prev := c.sess, c.conn, c.joined, c.state
	c.sess, c.conn = nil, nil
	c.subscribed, c.joined = "", ""
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		wctx, cancel := context.WithTimeout(ctx, time.Second)
		if joined != "" {
			_ = c.emit(wctx, conn, eventLeaveGame, chessdto.GameRef{GameID: joined})
		}
		_ = c.write(wctx, conn, disconnectFrame)
		cancel()
	}
	if sess != nil {
		sess.cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "disconnect")
	}
	if prev != StateDisconnected {
		c.notifyState(StateDisconnected)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (c *Channel) Close(ctx context.Context) error { return c.Disconnect(ctx) }

// Subscribe joins the room for gameID, leaving any other room first.
// Repeating it for the current room is a no-op. While offline the
// subscription is recorded and emitted on the next connection.
func (c *Channel) Subscribe(ctx context.Context, gameID string) error {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return fmt.Errorf("subscribe: empty game id")
	}
	c.mu.Lock()
	if c.subscribed == gameID && (c.conn == nil || c.joined == gameID) {
		c.mu.Unlock()
		return nil
	}
	prevJoined := c.joined
	c.subscribed = gameID
	conn := c.conn
	if conn != nil {
		c.joined = gameID
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if prevJoined != "" && prevJoined != gameID {
		if err := c.emit(ctx, conn, eventLeaveGame, chessdto.GameRef{GameID: prevJoined}); err != nil {
			c.logger.Debug("live_leave_error", zap.String("game_id", prevJoined), zap.Error(err))
		}
	}
	if err := c.emit(ctx, conn, eventJoinGame, chessdto.GameRef{GameID: gameID}); err != nil {
		c.mu.Lock()
		if c.conn == conn && c.joined == gameID {
			c.joined = ""
		}
		c.mu.Unlock()
		return fmt.Errorf("join %s: %w", gameID, err)
	}
	c.logger.Debug("live_subscribed", zap.String("game_id", gameID))
	return nil
}

// Unsubscribe leaves gameID's room. Delivery for it stops before leave_game is sent:
// callbacks not yet invoked for a push are skipped, but a callback already
// running when Unsubscribe returns is allowed to finish.
func (c *Channel) Unsubscribe(ctx context.Context, gameID string) error {
	c.mu.Lock()
	if c.subscribed == "" || (gameID != "" && c.subscribed != gameID) {
		c.mu.Unlock()
		return nil
	}
	left := c.subscribed
	joined := c.joined
	conn := c.conn
	c.subscribed, c.joined = "", ""
	c.mu.Unlock()

	if conn == nil || joined != left {
		return nil
	}
	if err := c.emit(ctx, conn, eventLeaveGame, chessdto.GameRef{GameID: left}); err != nil {
		return fmt.Errorf("leave %s: %w", left, err)
	}
	c.logger.Debug("live_unsubscribed", zap.String("game_id", left))
	return nil
}

func (c *Channel) dial(ctx context.Context, sess *connSession) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	stop := context.AfterFunc(sess.ctx, cancel)
	defer stop()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPHeader:      c.buildHeaders(),
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)

	open, err := c.handshake(dialCtx, conn)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "handshake")
		return err
	}

	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "stale session")
		return context.Canceled
	}
	c.conn = conn
	c.state = StateConnected
	gameID := c.subscribed
	c.joined = gameID
	c.mu.Unlock()

	c.lastSeen.Store(time.Now().UnixNano())
	c.logger.Info("live_connected", zap.String("sid", open.SID), zap.String("client_id", c.clientID))
	c.notifyState(StateConnected)

	c.wg.Add(2)
	go c.listen(sess, conn)
	go c.heartbeatLoop(sess, conn, open.heartbeat())

	if gameID != "" {
		if err := c.emit(sess.ctx, conn, eventJoinGame, chessdto.GameRef{GameID: gameID}); err != nil {
			c.logger.Warn("live_rejoin_error", zap.String("game_id", gameID), zap.Error(err))
			return nil
		}
		c.notifyResubscribe(gameID)
	}
	return nil
}

func (c *Channel) handshake(ctx context.Context, conn *websocket.Conn) (openPayload, error) {
	var open openPayload
	p, err := readPacket(ctx, conn)
	if err != nil {
		return open, fmt.Errorf("read open: %w", err)
	}
	if p.engine != eioOpen {
		return open, fmt.Errorf("expected open packet, got %q", p.engine)
	}
	if err := json.Unmarshal(p.data, &open); err != nil {
		return open, fmt.Errorf("decode open: %w", err)
	}

	var auth any
	if c.authProvider != nil {
		if tok := strings.TrimSpace(c.authProvider()); tok != "" {
			auth = map[string]string{"token": tok}
		}
	}
	frame, err := encodeConnect(auth)
	if err != nil {
		return open, err
	}
	if err := c.write(ctx, conn, frame); err != nil {
		return open, fmt.Errorf("send connect: %w", err)
	}

	for {
		p, err := readPacket(ctx, conn)
		if err != nil {
			return open, fmt.Errorf("await connect: %w", err)
		}
		switch {
		case p.engine == eioPing:
			if err := c.write(ctx, conn, pongFrame); err != nil {
				return open, err
			}
		case p.engine == eioMessage && p.socket == sioConnect:
			return open, nil
		case p.engine == eioMessage && p.socket == sioConnectError:
			return open, fmt.Errorf("connect rejected: %s", string(p.data))
		}
	}
}

func readPacket(ctx context.Context, conn *websocket.Conn) (packet, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return packet{}, err
	}
	return decodePacket(data)
}

func (c *Channel) listen(sess *connSession, conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, data, err := conn.Read(sess.ctx)
		if err != nil {
			if sess.ctx.Err() != nil {
				return
			}
			c.logger.Warn("live_read_error", zap.Error(err))
			c.dropConn(sess, conn, websocket.StatusGoingAway, "reconnect")
			return
		}
		c.lastSeen.Store(time.Now().UnixNano())

		p, err := decodePacket(data)
		if err != nil {
			c.logger.Debug("live_bad_frame", zap.Error(err))
			continue
		}
		switch p.engine {
		case eioPing:
			if err := c.write(sess.ctx, conn, pongFrame); err != nil {
				c.logger.Debug("live_pong_error", zap.Error(err))
			}
		case eioClose:
			c.dropConn(sess, conn, websocket.StatusNormalClosure, "server close")
			return
		case eioMessage:
			switch p.socket {
			case sioDisconnect:
				c.dropConn(sess, conn, websocket.StatusNormalClosure, "server disconnect")
				return
			case sioEvent:
				c.dispatch(sess, p)
			}
		}
	}
}

func (c *Channel) heartbeatLoop(sess *connSession, conn *websocket.Conn, timeout time.Duration) {
	defer c.wg.Done()
	t := time.NewTicker(timeout / 4)
	defer t.Stop()
	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			current := c.conn == conn
			c.mu.Unlock()
			if !current {
				return
			}
			if time.Since(time.Unix(0, c.lastSeen.Load())) > timeout {
				c.logger.Warn("live_heartbeat_timeout", zap.Duration("timeout", timeout))
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (c *Channel) dispatch(sess *connSession, p packet) {
	if p.event != eventGameUpdate || len(p.data) == 0 {
		return
	}
	var update chessdto.MoveOutcome
	if err := json.Unmarshal(p.data, &update); err != nil {
		c.logger.Warn("live_update_decode_error", zap.Error(err))
		return
	}

	if !c.delivering(sess, update.GameID) {
		c.logger.Debug("live_update_ignored", zap.String("game_id", update.GameID))
		return
	}

	c.cbM.RLock()
	callbacks := make([]updateEntry, len(c.updateCbs))
	copy(callbacks, c.updateCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback == nil {
			continue
		}
		// A callback may have unsubscribed or switched games.
		if !c.delivering(sess, update.GameID) {
			return
		}
		u := update
		entry.callback(&u)
	}
}

func (c *Channel) delivering(sess *connSession, gameID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess == sess && c.subscribed != "" && gameID == c.subscribed
}

// dropConn retires a broken connection and starts reconnecting if it was current.
func (c *Channel) dropConn(sess *connSession, conn *websocket.Conn, code websocket.StatusCode, reason string) {
	c.mu.Lock()
	current := c.sess == sess && c.conn == conn
	if current {
		c.conn = nil
		c.joined = ""
	}
	c.mu.Unlock()
	_ = conn.Close(code, reason)
	if current {
		c.scheduleReconnect(sess)
	}
}

func (c *Channel) scheduleReconnect(sess *connSession) {
	if !c.transition(sess, StateReconnecting) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for attempt := 1; c.maxReconnectAttempts <= 0 || attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-sess.ctx.Done():
				return
			case <-time.After(c.backoff(attempt)):
			}
			err := c.dial(sess.ctx, sess)
			if err == nil || sess.ctx.Err() != nil {
				return
			}
			c.logger.Debug("live_reconnect_error", zap.Int("attempt", attempt), zap.Error(err))
		}

		c.mu.Lock()
		if c.sess != sess {
			c.mu.Unlock()
			return
		}
		c.sess = nil
		c.state = StateFailed
		c.mu.Unlock()
		sess.cancel()
		c.logger.Warn("live_reconnect_abandoned", zap.Int("attempts", c.maxReconnectAttempts))
		c.notifyState(StateFailed)
	}()
}

func (c *Channel) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 7 {
		attempt = 7
	}
	d := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// transition sets state only while sess is still the live session.
func (c *Channel) transition(sess *connSession, state State) bool {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return false
	}
	c.state = state
	c.mu.Unlock()
	c.notifyState(state)
	return true
}

func (c *Channel) write(ctx context.Context, conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, frame)
}

func (c *Channel) emit(ctx context.Context, conn *websocket.Conn, event string, payload any) error {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.write(wctx, conn, frame)
}

func (c *Channel) OnUpdate(cb UpdateCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCbID++
	c.updateCbs = append(c.updateCbs, updateEntry{id: c.nextCbID, callback: cb})
	return c.nextCbID
}

func (c *Channel) OnStateChange(cb StateCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCbID++
	c.stateCbs = append(c.stateCbs, stateEntry{id: c.nextCbID, callback: cb})
	return c.nextCbID
}

func (c *Channel) OnResubscribe(cb ResubscribeCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCbID++
	c.resubCbs = append(c.resubCbs, resubscribeEntry{id: c.nextCbID, callback: cb})
	return c.nextCbID
}

// RemoveCallback unregisters any callback by the id its On* call returned.
func (c *Channel) RemoveCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, e := range c.updateCbs {
		if e.id == id {
			c.updateCbs = append(c.updateCbs[:i], c.updateCbs[i+1:]...)
			return
		}
	}
	for i, e := range c.stateCbs {
		if e.id == id {
			c.stateCbs = append(c.stateCbs[:i], c.stateCbs[i+1:]...)
			return
		}
	}
	for i, e := range c.resubCbs {
		if e.id == id {
			c.resubCbs = append(c.resubCbs[:i], c.resubCbs[i+1:]...)
			return
		}
	}
}

func (c *Channel) notifyState(state State) {
	c.logger.Info("live_state", zap.String("state", state.String()))
	c.cbM.RLock()
	callbacks := make([]stateEntry, len(c.stateCbs))
	copy(callbacks, c.stateCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (c *Channel) notifyResubscribe(gameID string) {
	c.cbM.RLock()
	callbacks := make([]resubscribeEntry, len(c.resubCbs))
	copy(callbacks, c.resubCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(gameID)
		}
	}
}

func (c *Channel) buildHeaders() http.Header {
	hdr := http.Header{}
	hdr.Set("X-Client-Id", c.clientID)
	if c.headerProvider == nil {
		return hdr
	}
	for k, v := range c.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
