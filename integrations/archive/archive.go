package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"lukechampine.com/blake3"

	"markertransfer/core/events"
	"markertransfer/core/types"
	"markertransfer/native/transfer"
)

const defaultQueueSize = 1024

// EventRecord is one committed transfer event. Hash is the BLAKE3 digest of
// the canonical event encoding and makes replays idempotent.
type EventRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Hash       string    `gorm:"size:64;uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	TransferID string    `gorm:"size:36;index"`
	Denom      string    `gorm:"size:128;index"`
	Attributes string    `gorm:"type:text"`
	RecordedAt time.Time `gorm:"index"`
}

// TransferRecord is the latest known state of a transfer, rebuilt from its
// events.
type TransferRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Denom     string `gorm:"size:128;index"`
	Amount    string `gorm:"size:80"`
	Sender    string `gorm:"size:90;index"`
	Recipient string `gorm:"size:90;index"`
	State     string `gorm:"size:16;index"`
	Admin     string `gorm:"size:90"`
	UpdatedAt time.Time
}

// AutoMigrate creates or updates the archive tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{}, &TransferRecord{})
}

// Open connects to dsn. postgres:// and postgresql:// URLs use the Postgres
// driver; anything else is treated as a SQLite DSN.
func Open(dsn string, logger *slog.Logger) (*Archive, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("archive: DSN required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}
	return New(db, logger)
}

// Archive persists committed transfer events into a SQL database on a
// background worker.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan *types.Event
	wg     sync.WaitGroup
}

// New migrates db and starts the archive worker.
func New(db *gorm.DB, logger *slog.Logger) (*Archive, error) {
	if db == nil {
		return nil, errors.New("archive: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	a := &Archive{
		db:     db,
		logger: logger,
		now:    time.Now,
		queue:  make(chan *types.Event, defaultQueueSize),
	}
	a.wg.Add(1)
	go a.worker()
	return a, nil
}

// Emit implements events.Emitter. Events are dropped with a warning when the
// queue is full.
func (a *Archive) Emit(evt events.Event) {
	if evt == nil || evt.Event() == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- evt.Event():
	default:
		a.logger.Warn("archive queue full, dropping event", slog.String("type", evt.EventType()))
	}
}

func (a *Archive) worker() {
	defer a.wg.Done()
	for evt := range a.queue {
		if err := a.Record(context.Background(), evt); err != nil {
			a.logger.Error("archive event", slog.String("type", evt.Type), slog.Any("error", err))
		}
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (a *Archive) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}

// Record writes evt and updates the transfer projection in one database
// transaction. Recording the same event twice is a no-op.
func (a *Archive) Record(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	now := a.now().UTC()
	record := EventRecord{
		Hash:       EventHash(evt),
		Type:       evt.Type,
		TransferID: evt.Attribute("id"),
		Denom:      evt.Attribute("denom"),
		Attributes: string(attrs),
		RecordedAt: now,
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "hash"}}, DoNothing: true}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || record.TransferID == "" {
			return nil
		}
		return applyProjection(tx, evt, now)
	})
}

func applyProjection(tx *gorm.DB, evt *types.Event, at time.Time) error {
	id := evt.Attribute("id")
	if evt.Type == transfer.EventTypeTransferCreated {
		row := TransferRecord{
			ID:        id,
			Denom:     evt.Attribute("denom"),
			Amount:    evt.Attribute("amount"),
			Sender:    evt.Attribute("sender"),
			Recipient: evt.Attribute("recipient"),
			State:     transfer.StatusPending.String(),
			UpdatedAt: at,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	}
	state, ok := resolvedState(evt.Type)
	if !ok {
		return nil
	}
	updates := map[string]interface{}{"state": state, "updated_at": at}
	if admin := evt.Attribute("admin"); admin != "" {
		updates["admin"] = admin
	}
	return tx.Model(&TransferRecord{}).Where("id = ?", id).Updates(updates).Error
}

func resolvedState(eventType string) (string, bool) {
	switch eventType {
	case transfer.EventTypeTransferApproved:
		return transfer.StatusApproved.String(), true
	case transfer.EventTypeTransferRejected:
		return transfer.StatusRejected.String(), true
	case transfer.EventTypeTransferCancelled:
		return transfer.StatusCancelled.String(), true
	default:
		return "", false
	}
}

// Filter narrows Transfers. Empty fields match everything.
type Filter struct {
	State  string
	Denom  string
	Sender string
	Limit  int
}

// Transfers returns projected transfers ordered by id.
func (a *Archive) Transfers(ctx context.Context, f Filter) ([]TransferRecord, error) {
	q := a.db.WithContext(ctx).Model(&TransferRecord{}).Order("id")
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.Denom != "" {
		q = q.Where("denom = ?", f.Denom)
	}
	if f.Sender != "" {
		q = q.Where("sender = ?", f.Sender)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []TransferRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the archived events of one transfer in commit order.
func (a *Archive) History(ctx context.Context, transferID string) ([]EventRecord, error) {
	var out []EventRecord
	err := a.db.WithContext(ctx).Where("transfer_id = ?", transferID).Order("id").Find(&out).Error
	return out, err
}

// EventHash digests the event type and its attributes in key order.
func EventHash(evt *types.Event) string {
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := bytes.NewBuffer(nil)
	writeDelimited(buf, evt.Type)
	for _, k := range keys {
		writeDelimited(buf, k)
		writeDelimited(buf, evt.Attributes[k])
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func writeDelimited(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}
