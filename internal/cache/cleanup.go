package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Expirer is a store that needs expired entries purged explicitly.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupScheduler periodically purges expired entries from an Expirer.
type CleanupScheduler struct {
	store    Expirer
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCleanupScheduler creates a scheduler. A zero interval defaults to 10 minutes.
func NewCleanupScheduler(store Expirer, interval time.Duration) *CleanupScheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CleanupScheduler{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the cleanup loop.
func (s *CleanupScheduler) Start() {
	log.Info().Str("component", "cache").Dur("interval", s.interval).Msg("cleanup scheduler started")

	s.wg.Add(1)
	go s.run()
}

func (s *CleanupScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunNow()
		case <-s.stopCh:
			return
		}
	}
}

// RunNow performs one purge and returns the number of removed entries.
func (s *CleanupScheduler) RunNow() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.store.DeleteExpired(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "cache").Msg("cleanup failed")
		return 0
	}
	if deleted > 0 {
		log.Debug().Str("component", "cache").Int64("deleted", deleted).Msg("expired entries removed")
	}
	return deleted
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}
