// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartPruneScheduler drops submitted and stale live race states on a fixed
// cadence. The live counter is a disposable cache, so pruning can never lose
// anything the ledger cares about.
func (s *LiveRaceService) StartPruneScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 10 minutes: sweep live states older than a day or already
	// submitted through the oracle gate.
	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			if removed := s.Prune(24 * time.Hour); removed > 0 {
				log.Printf("🧹 Pruned %d live race state(s)", removed)
			}
		}),
	)
}
