package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"

	"pricewatch_backend/models"
	"pricewatch_backend/services/alerts"
)

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron  *gocron.Scheduler
	db    *gorm.DB
	cycle *alerts.Cycle

	evalInterval    int
	marketHoursOnly bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(db *gorm.DB, cycle *alerts.Cycle, evalIntervalMinutes int, marketHoursOnly bool) *Scheduler {
	if evalIntervalMinutes <= 0 {
		evalIntervalMinutes = 2
	}
	return &Scheduler{
		cron:            gocron.NewScheduler(time.UTC),
		db:              db,
		cycle:           cycle,
		evalInterval:    evalIntervalMinutes,
		marketHoursOnly: marketHoursOnly,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Evaluate alerts on a fixed interval
	s.cron.Every(s.evalInterval).Minutes().Do(func() {
		if s.marketHoursOnly && !isMarketOpen() {
			return
		}
		s.runEvaluation()
	})

	// Cleanup old data weekly on Sunday at 01:00
	s.cron.Every(1).Week().Sunday().At("01:00").Do(func() {
		s.cleanupOldData()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// runEvaluation runs one evaluation cycle with a deadline slightly
// under the interval so overlapping runs cannot pile up
func (s *Scheduler) runEvaluation() {
	deadline := time.Duration(s.evalInterval)*time.Minute - 10*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	if _, err := s.cycle.Run(ctx); err != nil {
		log.Printf("Error running evaluation cycle: %v", err)
	}
}

// cleanupOldData removes acknowledged triggers and dead tokens
func (s *Scheduler) cleanupOldData() {
	log.Println("Cleaning up old data...")

	// Delete read triggers older than 30 days
	thirtyDaysAgo := time.Now().AddDate(0, 0, -30)
	if err := s.db.Where("is_read = ? AND triggered_at < ?", true, thirtyDaysAgo).
		Delete(&models.TriggeredAlert{}).Error; err != nil {
		log.Printf("Error cleaning up old triggers: %v", err)
	}

	// Delete device tokens that have been inactive for 90 days
	ninetyDaysAgo := time.Now().AddDate(0, 0, -90)
	if err := s.db.Where("is_active = ? AND updated_at < ?", false, ninetyDaysAgo).
		Delete(&models.DeviceToken{}).Error; err != nil {
		log.Printf("Error cleaning up dead device tokens: %v", err)
	}

	log.Println("Cleanup completed")
}

// isMarketOpen checks if the US equity market is currently open
func isMarketOpen() bool {
	now := time.Now().UTC()

	// Check if weekend
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}

	// US market hours: 09:30 - 16:00 Eastern, approximated as UTC
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= 13*60+30 && minutes < 20*60
}
