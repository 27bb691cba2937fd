// Package copilot is the persistence layer for analyst conversation
// threads, their messages, and the memories distilled from them.
package copilot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"parking-analyst/database"
)

// Repository provides thread, message and memory persistence operations
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a copilot repository
func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db.DB()}
}

// CreateThread persists a new conversation thread in open state
func (r *Repository) CreateThread(ctx context.Context, thread *database.CopilotThread) error {
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	if thread.Status == "" {
		thread.Status = database.ThreadStatusOpen
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(thread).Error; err != nil {
		return database.WrapDBError("create thread", err)
	}
	return nil
}

// GetThread fetches one thread
func (r *Repository) GetThread(ctx context.Context, id string) (*database.CopilotThread, error) {
	var thread database.CopilotThread
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.NewNotFoundErrorWithID("thread", id)
		}
		return nil, database.WrapDBError("fetch thread", err)
	}
	return &thread, nil
}

// ListThreads returns threads restricted to the given zones, newest first.
// Zone narrows the listing to one zone when set.
func (r *Repository) ListThreads(ctx context.Context, zoneIDs []string, zone string, limit int) ([]database.CopilotThread, error) {
	query := r.db.WithContext(ctx).
		Where("zone_id = ANY(?)", pq.Array(zoneIDs))
	if zone != "" {
		query = query.Where("zone_id = ?", zone)
	}
	if limit <= 0 {
		limit = 50
	}

	var threads []database.CopilotThread
	err := query.Order("created_at DESC").Limit(limit).Find(&threads).Error
	if err != nil {
		return nil, database.WrapDBError("list threads", err)
	}
	return threads, nil
}

// SetThreadStatus transitions a thread between open and closed
func (r *Repository) SetThreadStatus(ctx context.Context, id, status string) error {
	result := r.db.WithContext(ctx).
		Model(&database.CopilotThread{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return database.WrapDBError("update thread status", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("thread", id)
	}
	return nil
}

// AppendMessage persists one conversation turn
func (r *Repository) AppendMessage(ctx context.Context, msg *database.CopilotMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return database.WrapDBError("append message", err)
	}
	return nil
}

// ListMessages returns a thread's messages in conversation order
func (r *Repository) ListMessages(ctx context.Context, threadID string) ([]database.CopilotMessage, error) {
	var messages []database.CopilotMessage
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, database.WrapDBError("list messages", err)
	}
	return messages, nil
}

// SaveMemories persists a batch of distilled memories
func (r *Repository) SaveMemories(ctx context.Context, memories []database.CopilotMemory) error {
	if len(memories) == 0 {
		return nil
	}
	for i := range memories {
		if memories[i].ID == "" {
			memories[i].ID = uuid.NewString()
		}
		if memories[i].Kind == "" {
			memories[i].Kind = database.MemoryKindContext
		}
		memories[i].IsActive = true
		if memories[i].CreatedAt.IsZero() {
			memories[i].CreatedAt = time.Now().UTC()
		}
	}
	if err := r.db.WithContext(ctx).Create(&memories).Error; err != nil {
		return database.WrapDBError("save memories", err)
	}
	return nil
}

// ListMemories returns active memories for the given zones, newest first.
// Kind narrows the listing when set.
func (r *Repository) ListMemories(ctx context.Context, zoneIDs []string, kind string, limit int) ([]database.CopilotMemory, error) {
	query := r.db.WithContext(ctx).
		Where("zone_id = ANY(?) AND is_active", pq.Array(zoneIDs))
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if limit <= 0 {
		limit = 50
	}

	var memories []database.CopilotMemory
	err := query.Order("created_at DESC").Limit(limit).Find(&memories).Error
	if err != nil {
		return nil, database.WrapDBError("list memories", err)
	}
	return memories, nil
}

// GetMemory fetches one active memory
func (r *Repository) GetMemory(ctx context.Context, id string) (*database.CopilotMemory, error) {
	var memory database.CopilotMemory
	err := r.db.WithContext(ctx).Where("id = ? AND is_active", id).First(&memory).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.NewNotFoundErrorWithID("memory", id)
		}
		return nil, database.WrapDBError("fetch memory", err)
	}
	return &memory, nil
}

// DeactivateMemory soft-deletes a memory so it stops feeding prompts while
// the audit row survives
func (r *Repository) DeactivateMemory(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&database.CopilotMemory{}).
		Where("id = ? AND is_active", id).
		Update("is_active", false)
	if result.Error != nil {
		return database.WrapDBError("deactivate memory", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("memory", id)
	}
	return nil
}
