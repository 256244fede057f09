package scheduler

// Package scheduler provides scheduled job management for the
// pricewatch backend. It handles:
// - Periodic alert evaluation cycles
// - Periodic cleanup of acknowledged triggers and dead device tokens
//
// The main scheduler is implemented in jobs.go
