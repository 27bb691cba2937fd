package app

import (
	"context"
	"log"
	"time"

	"parking-analyst/database/experiments"
)

// ExperimentTracker periodically advances experiment lifecycle statuses:
// scheduled experiments whose window opened become running, running
// experiments past their horizon become complete
type ExperimentTracker struct {
	repo *experiments.Repository
	done chan bool
}

// NewExperimentTracker creates a new experiment tracker
func NewExperimentTracker(repo *experiments.Repository) *ExperimentTracker {
	return &ExperimentTracker{
		repo: repo,
		done: make(chan bool),
	}
}

// Start begins the tracking loop
func (et *ExperimentTracker) Start() {
	log.Println("🧪 Experiment Tracker started")

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	// Initial run
	et.advance()

	for {
		select {
		case <-ticker.C:
			et.advance()
		case <-et.done:
			log.Println("🧪 Experiment Tracker stopped")
			return
		}
	}
}

// Stop stops the tracking loop
func (et *ExperimentTracker) Stop() {
	et.done <- true
}

// advance moves experiments through their lifecycle
func (et *ExperimentTracker) advance() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()

	started, err := et.repo.MarkRunning(ctx, now)
	if err != nil {
		log.Printf("⚠️ Failed to start scheduled experiments: %v", err)
	} else if started > 0 {
		log.Printf("🧪 %d experiments moved to running", started)
	}

	completed, err := et.repo.MarkComplete(ctx, now)
	if err != nil {
		log.Printf("⚠️ Failed to complete running experiments: %v", err)
	} else if completed > 0 {
		log.Printf("🧪 %d experiments completed", completed)
	}
}
