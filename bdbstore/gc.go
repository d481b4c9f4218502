package bdbstore

import (
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// GCRunner periodically runs value log garbage collection on a Badger database.
type GCRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewGCRunner returns a GCRunner that runs GC on db every interval, rewriting
// value log files that are at least ratio garbage. Call Start to begin.
func NewGCRunner(db *badger.DB, interval time.Duration, ratio float64) (*GCRunner, error) {
	if db == nil {
		return nil, errors.New("bdbstore: nil db")
	}

	if interval <= 0 {
		return nil, errors.New("bdbstore: GC interval must be positive")
	}

	if ratio <= 0 || ratio >= 1 {
		return nil, errors.New("bdbstore: GC discard ratio must be in (0, 1)")
	}

	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins periodic GC in a new goroutine.
func (r *GCRunner) Start() {
	go r.run()
}

// Stop halts GC and waits for an in-progress run to finish.
// It must only be called after Start.
func (r *GCRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *GCRunner) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			n, err := runValueLogGC(r.db, r.ratio)
			if err != nil {
				glog.Warningf("Badger value log GC failed: %v", err)
			} else if n > 0 {
				glog.V(1).Infof("Badger value log GC rewrote %d files", n)
			}
		}
	}
}

// runValueLogGC rewrites value log files until none is at least ratio garbage.
// It returns the number of files rewritten.
func runValueLogGC(db *badger.DB, ratio float64) (int, error) {
	n := 0
	for {
		err := db.RunValueLogGC(ratio)
		switch {
		case err == nil:
			n++
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
			return n, nil
		default:
			return n, err
		}
	}
}
