package clientbuilder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-chess-client/internal/apiclient"
	"github.com/park285/Cheese-chess-client/internal/archive"
	"github.com/park285/Cheese-chess-client/internal/auth"
	"github.com/park285/Cheese-chess-client/internal/board"
	"github.com/park285/Cheese-chess-client/internal/config"
	"github.com/park285/Cheese-chess-client/internal/gamesession"
	"github.com/park285/Cheese-chess-client/internal/livechan"
	"github.com/park285/Cheese-chess-client/internal/msgcat"
	"github.com/park285/Cheese-chess-client/internal/presenter"
)

const liveFailedNotice = "live updates are unavailable; run `status` to retry"

// Deps is every long-lived component of the client and the wiring between them.
type Deps struct {
	Config    *config.AppConfig
	API       *apiclient.Client
	Session   *auth.Store
	Live      *livechan.Channel
	Core      *gamesession.Manager
	Archive   *archive.Recorder
	Formatter *presenter.Formatter
	Renderer  *board.Renderer

	logger *zap.Logger
	creds  auth.CredentialStore
	repo   archive.Repository

	ctx    context.Context
	cancel context.CancelFunc

	// lifecycle serializes connect/disconnect requests coming from session events.
	lifecycle chan func()
	wg        sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
	cbSession int
	cbUpdate  int
	cbResub   int
	cbState   int
	cbView    int
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelInit()

	creds, err := newCredentialStore(initCtx, cfg)
	if err != nil {
		return nil, err
	}

	var repo archive.Repository = archive.NewMemoryRepository()
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pg, err := archive.NewPostgresRepository(initCtx, cfg.DatabaseURL)
		if err != nil {
			closeCreds(creds)
			return nil, fmt.Errorf("init archive: %w", err)
		}
		repo = pg
	}

	api := apiclient.NewClient(cfg.APIURL,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithLogger(logger.Named("api")),
	)
	session := auth.NewStore(api, creds, auth.WithLogger(logger.Named("session")))
	api.SetTokenProvider(session.Token)

	live := livechan.New(cfg.LiveURL,
		livechan.WithLogger(logger.Named("live")),
		livechan.WithReconnect(cfg.LiveReconnectAttempts, cfg.LiveReconnectDelay),
		livechan.WithAuthProvider(session.Token),
		livechan.WithHeaderProvider(func() map[string]string {
			if tok := session.Token(); tok != "" {
				return map[string]string{"Authorization": "Bearer " + tok}
			}
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	core := gamesession.New(ctx, api, live,
		gamesession.WithLogger(logger.Named("core")),
		gamesession.WithCallTimeout(cfg.HTTPTimeout),
		gamesession.WithInvalidator(session.Invalidate),
	)

	return &Deps{
		Config:    cfg,
		API:       api,
		Session:   session,
		Live:      live,
		Core:      core,
		Archive:   archive.NewRecorder(repo, logger.Named("archive")),
		Formatter: presenter.NewFormatter(cat),
		Renderer:  board.NewRenderer(),
		logger:    logger,
		creds:     creds,
		repo:      repo,
		ctx:       ctx,
		cancel:    cancel,
		lifecycle: make(chan func(), 16),
	}, nil
}

func newCredentialStore(ctx context.Context, cfg *config.AppConfig) (auth.CredentialStore, error) {
	switch cfg.CredentialBackend {
	case config.CredentialMemory:
		return auth.NewMemoryStore(), nil
	case config.CredentialRedis:
		rs, err := auth.NewRedisStoreFromURL(ctx, cfg.RedisURL, cfg.CredentialProfile)
		if err != nil {
			return nil, fmt.Errorf("init credential store: %w", err)
		}
		return rs, nil
	default:
		path := cfg.CredentialFile
		if path == "" {
			path = auth.DefaultCredentialFile()
		}
		return auth.NewFileStore(path), nil
	}
}

func closeCreds(creds auth.CredentialStore) {
	if c, ok := creds.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

// Start binds the components together and restores a saved credential.
// A Restore failure is returned but leaves the client usable.
func (d *Deps) Start(ctx context.Context) error {
	started := false
	d.startOnce.Do(func() {
		started = true
		d.wg.Add(1)
		go d.runLifecycle()

		d.cbSession = d.Session.OnChange(d.onSessionEvent)
		d.cbUpdate = d.Live.OnUpdate(d.Core.HandlePush)
		d.cbResub = d.Live.OnResubscribe(d.Core.Resync)
		d.cbState = d.Live.OnStateChange(d.onLiveState)
		d.cbView = d.Core.OnChange(d.onView)
	})
	if !started {
		return nil
	}
	if err := d.Session.Restore(ctx); err != nil {
		d.logger.Warn("restore_failed", zap.Error(err))
		return err
	}
	return nil
}

// Viewer is the signed-in username, or "".
func (d *Deps) Viewer() string {
	if id := d.Session.Identity(); id != nil {
		return id.Username
	}
	return ""
}

// EnsureLive reconnects the channel after it gave up, when a credential is held.
func (d *Deps) EnsureLive() {
	if !d.Session.Authenticated() {
		return
	}
	switch d.Live.State() {
	case livechan.StateDisconnected, livechan.StateFailed:
		d.enqueue(d.connect)
	}
}

func (d *Deps) onSessionEvent(ev auth.Event) {
	switch ev.Kind {
	case auth.EventCredential:
		d.enqueue(d.connect)
	case auth.EventLoggedOut:
		reason := ev.Reason
		d.enqueue(func() {
			d.Core.Abandon()
			dctx, cancel := context.WithTimeout(d.ctx, 3*time.Second)
			defer cancel()
			if err := d.Live.Disconnect(dctx); err != nil {
				d.logger.Debug("live_disconnect_error", zap.Error(err))
			}
			switch reason {
			case "", "logout", "switching user":
				d.Core.ClearNotice()
			default:
				d.Core.Notify("signed out: " + reason)
			}
		})
	}
}

func (d *Deps) connect() {
	if !d.Session.Authenticated() {
		return
	}
	cctx, cancel := context.WithTimeout(d.ctx, 10*time.Second)
	defer cancel()
	if err := d.Live.Connect(cctx); err != nil {
		d.logger.Info("live_connect_deferred", zap.Error(err))
	}
}

func (d *Deps) onLiveState(state livechan.State) {
	d.logger.Debug("live_state", zap.String("state", state.String()))
	d.Core.SetLiveState(state)
	if state == livechan.StateFailed {
		d.Core.Notify(liveFailedNotice)
	}
}

func (d *Deps) onView(v gamesession.View) {
	if v.Game == nil || !v.Game.Status.Terminal() {
		return
	}
	viewer := d.Viewer()
	gs, lastMove := v.Game, v.LastMove
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
		defer cancel()
		_, _ = d.Archive.Observe(sctx, gs, viewer, lastMove)
	}()
}

func (d *Deps) enqueue(fn func()) {
	select {
	case d.lifecycle <- fn:
	case <-d.ctx.Done():
	}
}

func (d *Deps) runLifecycle() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case fn := <-d.lifecycle:
			fn()
		}
	}
}

// Close unbinds callbacks and shuts every component down.
func (d *Deps) Close(ctx context.Context) error {
	var firstErr error
	d.closeOnce.Do(func() {
		d.Session.RemoveCallback(d.cbSession)
		d.Live.RemoveCallback(d.cbUpdate)
		d.Live.RemoveCallback(d.cbResub)
		d.Live.RemoveCallback(d.cbState)
		d.Core.RemoveCallback(d.cbView)

		if err := d.Live.Close(ctx); err != nil {
			firstErr = err
		}
		d.Core.Close()
		d.cancel()
		d.wg.Wait()

		if err := d.repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		closeCreds(d.creds)
	})
	return firstErr
}
