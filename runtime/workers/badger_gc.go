package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const gcDiscardRatio = 0.5

// BadgerGCWorker reclaims Badger value-log space in the background. Badger
// never runs this on its own; skipping it makes the store grow unbounded.
type BadgerGCWorker struct {
	db       *badger.DB
	log      *slog.Logger
	interval time.Duration
}

func NewBadgerGCWorker(db *badger.DB, log *slog.Logger, interval time.Duration) *BadgerGCWorker {
	return &BadgerGCWorker{db: db, log: log, interval: interval}
}

func (w *BadgerGCWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping badger GC worker")
			return nil
		case <-ticker.C:
			// One call only rewrites one value-log file; loop until there
			// is nothing left to reclaim.
			for {
				if err := w.db.RunValueLogGC(gcDiscardRatio); err != nil {
					if err != badger.ErrNoRewrite {
						w.log.Warn("Badger value log GC failed", "error", err)
					}
					break
				}
			}
		}
	}
}
