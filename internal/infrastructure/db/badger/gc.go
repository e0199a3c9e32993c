package badgerdb

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

const (
	defaultGCInterval = 5 * time.Minute
	gcDiscardRatio    = 0.5
)

// valueLogGC periodically reclaims the space of rewritten listings and
// balances from the badger value log.
type valueLogGC struct {
	db        *badger.DB
	scheduler *gocron.Scheduler
}

func newValueLogGC(db *badger.DB, interval time.Duration) (*valueLogGC, error) {
	gc := &valueLogGC{
		db:        db,
		scheduler: gocron.NewScheduler(time.UTC),
	}

	if _, err := gc.scheduler.Every(interval).
		WaitForSchedule().
		SingletonMode().
		Do(func() { gc.run() }); err != nil {
		return nil, err
	}
	gc.scheduler.StartAsync()
	return gc, nil
}

// run rewrites value log files until none is worth collecting.
func (g *valueLogGC) run() int {
	lsm, vlog := g.db.Size()
	log.WithField("lsm", lsm).WithField("vlog", vlog).Trace("badger size")

	count := 0
	for {
		err := g.db.RunValueLogGC(gcDiscardRatio)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				log.WithError(err).Warn("badger value log gc failed")
			}
			break
		}
		count++
	}
	if count > 0 {
		log.Debugf("badger value log gc rewrote %d files", count)
	}
	return count
}

func (g *valueLogGC) stop() {
	g.scheduler.Stop()
}
