package attendance

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler periodically closes sessions whose end time has passed so absent
// records get back-filled even when nobody closes the session by hand.
type Scheduler struct {
	service   *Service
	scheduler *gocron.Scheduler
	interval  time.Duration
}

// NewScheduler creates a scheduler checking every interval.
func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		service:   service,
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
	}
}

// Start begins the periodic sweep in the background.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.sweep); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop halts the sweep and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessions, err := s.service.sessions.ListActiveSessions(ctx)
	if err != nil {
		log.Printf("session sweep failed: %v", err)
		return
	}

	now := s.service.now()
	for _, session := range sessions {
		if session.EndsAt == nil || now.Before(*session.EndsAt) {
			continue
		}
		if _, err := s.service.CloseSession(ctx, session.ID, "system"); err != nil {
			log.Printf("failed to auto-close session %s: %v", session.ID, err)
		}
	}
}
