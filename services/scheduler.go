// moltcourt-arena/services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweepScheduler runs the trial sweep every minute in the background.
// Voting deadlines are otherwise only observed when a vote arrives, so
// without the sweep a trial whose window expires quietly would never resolve.
func (s *TrialService) StartSweepScheduler() {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[TrialSweep] scheduler init failed: %v", err)
		return
	}
	sched.Start()

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			s.SweepStalled()
		}),
	)
	if err != nil {
		log.Printf("[TrialSweep] job registration failed: %v", err)
		return
	}

	log.Println("[TrialSweep] scheduler started (every 1m)")
}
