// Package audit keeps a durable journal of the facts emitted by the bridge
// gateway so operators can reconstruct every committed transition.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stakebridge/core/events"
	"stakebridge/core/types"
)

// ErrDSNRequired is returned when the journal DSN is empty.
var ErrDSNRequired = errors.New("audit: dsn must be configured")

// Entry is one journaled event.
type Entry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence    uint64    `gorm:"uniqueIndex;not null"`
	Type        string    `gorm:"index;not null"`
	MessageHash string    `gorm:"index"`
	Attributes  string    `gorm:"not null"`
	CreatedAt   time.Time
}

// TableName pins the table name.
func (Entry) TableName() string { return "bridge_audit_entries" }

// Decode returns the journaled event in attribute form.
func (e Entry) Decode() (*types.Event, error) {
	attrs := map[string]string{}
	if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("audit: decode entry %s: %w", e.ID, err)
	}
	return &types.Event{Type: e.Type, Attributes: attrs}, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type        string
	MessageHash string
	AfterSeq    uint64
	Limit       int
}

// Journal appends emitted events to a SQL table. It implements events.Emitter.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string, logger *slog.Logger) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDSNRequired
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	return New(db, logger)
}

// New wraps an existing GORM handle and migrates the schema.
func New(db *gorm.DB, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("audit: nil database")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	var last uint64
	if err := db.Model(&Entry{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("audit: load sequence: %w", err)
	}
	return &Journal{db: db, logger: logger, now: time.Now, seq: last}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Failures are logged since emitters cannot
// report errors.
func (j *Journal) Emit(evt events.Event) {
	if err := j.Record(context.Background(), evt); err != nil {
		j.logger.Error("audit: record event failed", "type", evt.EventType(), "error", err)
	}
}

// Record appends evt to the journal. Events without an attribute form are
// stored with their type only.
func (j *Journal) Record(ctx context.Context, evt events.Event) error {
	if j == nil || j.db == nil {
		return errors.New("audit: journal not configured")
	}
	if evt == nil {
		return errors.New("audit: nil event")
	}
	attrs := map[string]string{}
	if b, ok := evt.(events.Broadcastable); ok {
		if flat := b.Event(); flat != nil {
			attrs = flat.Attributes
		}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("audit: encode attributes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	entry := Entry{
		ID:          uuid.New(),
		Sequence:    j.seq + 1,
		Type:        evt.EventType(),
		MessageHash: strings.ToLower(attrs["messageHash"]),
		Attributes:  string(raw),
		CreatedAt:   j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	j.seq = entry.Sequence
	return nil
}

// List returns journaled entries in sequence order.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("audit: journal not configured")
	}
	query := j.db.WithContext(ctx).Model(&Entry{}).Where("sequence > ?", filter.AfterSeq)
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if hash := strings.TrimSpace(filter.MessageHash); hash != "" {
		query = query.Where("message_hash = ?", strings.ToLower(hash))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var out []Entry
	if err := query.Order("sequence ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	return out, nil
}
