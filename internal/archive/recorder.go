package archive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

// Recorder saves each terminal state once per (game id, last_move_at, viewer).
// A rematch on the same game id finishes with a new last_move_at and is saved again.
type Recorder struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewRecorder(repo Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger, now: time.Now, seen: make(map[string]struct{})}
}

// Observe stores gs if it is terminal and not yet recorded. It reports whether a row was written.
func (r *Recorder) Observe(ctx context.Context, gs *chessdto.GameState, viewer, lastMove string) (bool, error) {
	rec, ok := NewRecord(gs, viewer, lastMove, r.now())
	if !ok {
		return false, nil
	}
	key := rec.GameID + "|" + rec.LastMoveAt + "|" + viewer

	r.mu.Lock()
	if _, dup := r.seen[key]; dup {
		r.mu.Unlock()
		return false, nil
	}
	r.seen[key] = struct{}{}
	r.mu.Unlock()

	if err := r.repo.SaveResult(ctx, rec); err != nil {
		r.mu.Lock()
		delete(r.seen, key)
		r.mu.Unlock()
		r.logger.Warn("archive_save_failed", zap.String("game_id", rec.GameID), zap.Error(err))
		return false, err
	}
	r.logger.Info("archive_saved",
		zap.String("game_id", rec.GameID),
		zap.String("result", rec.Result),
		zap.String("outcome", string(rec.Outcome)),
	)
	return true, nil
}

func (r *Recorder) Recent(ctx context.Context, viewer string, limit int) ([]Record, error) {
	return r.repo.Recent(ctx, viewer, limit)
}
