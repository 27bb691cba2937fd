package database

import (
	"context"
	"log"

	"gorm.io/gorm"
)

// AdvisoryMutex is a distributed mutex backed by a Postgres advisory lock.
// Advisory locks are session-scoped, so the mutex pins a single pooled
// connection for the duration of the critical section.
type AdvisoryMutex struct {
	db  *Database
	key int64
}

// NewAdvisoryMutex creates a mutex for the given well-known lock key
func NewAdvisoryMutex(db *Database, key int64) *AdvisoryMutex {
	return &AdvisoryMutex{db: db, key: key}
}

// Key returns the lock identifier
func (m *AdvisoryMutex) Key() int64 {
	return m.key
}

// WithLock acquires the advisory lock, runs fn, and releases the lock on
// every exit path, fn errors included. Acquisition blocks until the lock is
// granted or ctx is cancelled.
func (m *AdvisoryMutex) WithLock(ctx context.Context, fn func() error) error {
	return m.db.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", m.key).Error; err != nil {
			return WrapDBError("advisory lock acquire", err)
		}
		defer func() {
			if err := conn.Exec("SELECT pg_advisory_unlock(?)", m.key).Error; err != nil {
				log.Printf("⚠️ Failed to release advisory lock %d: %v", m.key, err)
			}
		}()
		return fn()
	})
}
