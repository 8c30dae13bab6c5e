package scheduler

import (
	"log"
	"time"

	"ytgate/internal/quota"
)

// Scheduler fires the daily quota rollover at local midnight in the
// configured reset timezone. Rollover is also applied lazily on access,
// so a missed tick only delays the log line, not the reset itself.
type Scheduler struct {
	ledger   *quota.Ledger
	loc      *time.Location
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(ledger *quota.Ledger, loc *time.Location) *Scheduler {
	return &Scheduler{
		ledger:   ledger,
		loc:      loc,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the reset loop in a goroutine
func (s *Scheduler) Start() {
	go s.run()
	log.Printf("✅ Daily reset scheduled for midnight %s (next in %s)", s.loc, untilMidnight(time.Now().In(s.loc)).Round(time.Second))
}

// Stop terminates the reset loop and waits for it to exit
func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *Scheduler) run() {
	defer close(s.doneChan)

	for {
		timer := time.NewTimer(untilMidnight(time.Now().In(s.loc)))
		select {
		case <-timer.C:
			if err := s.ledger.Rollover(); err != nil {
				log.Printf("⚠️ Scheduled quota rollover failed: %v", err)
			} else {
				log.Printf("🔄 Daily quota counters rolled over")
			}
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

// untilMidnight returns the duration from now to the next local
// midnight, with a small cushion so the tick lands on the new day
func untilMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now) + time.Second
}
