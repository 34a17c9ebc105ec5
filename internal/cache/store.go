// Package cache keeps a local snapshot of the last negotiation records
// fetched from the backend, so a view can degrade to read-only when the
// backend is unreachable.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/procurebot/internal/db"
	"github.com/zulandar/procurebot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when no snapshot exists for a negotiation.
var ErrNotFound = errors.New("cache: snapshot not found")

// Store reads and writes negotiation snapshots.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore wraps an open database. The snapshot tables must already exist
// (see db.AutoMigrate).
func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb, now: time.Now}
}

// Open opens the cache database with the given driver and migrates it.
func Open(driver, dsn string) (*Store, error) {
	gdb, err := db.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		db.Close(gdb)
		return nil, err
	}
	return NewStore(gdb), nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the cache database.
func (s *Store) Close() error { return db.Close(s.db) }

// Put writes a full negotiation record, replacing any earlier snapshot.
func (s *Store) Put(rec *models.Negotiation) error {
	snap, err := toSnapshot(rec, s.now())
	if err != nil {
		return err
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "negotiation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "status", "buyer_email", "supplier_email", "target_details",
			"chat_history", "record_created", "record_updated", "fetched_at",
		}),
	}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the snapshot of a negotiation with FromCache set.
func (s *Store) Get(id string) (*models.Negotiation, error) {
	var snap models.NegotiationSnapshot
	err := s.db.Where("negotiation_id = ?", id).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", id, err)
	}
	rec := fromSnapshot(snap)
	return &rec, nil
}

// Delete removes a snapshot. Deleting a missing snapshot is not an error.
func (s *Store) Delete(id string) error {
	if err := s.db.Where("negotiation_id = ?", id).Delete(&models.NegotiationSnapshot{}).Error; err != nil {
		return fmt.Errorf("cache: delete %s: %w", id, err)
	}
	return nil
}

// Prune deletes snapshots fetched before cutoff and returns how many were
// removed.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res := s.db.Where("fetched_at < ?", cutoff).Delete(&models.NegotiationSnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("cache: prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func toSnapshot(rec *models.Negotiation, now time.Time) (models.NegotiationSnapshot, error) {
	details, err := json.Marshal(rec.TargetDetails)
	if err != nil {
		return models.NegotiationSnapshot{}, fmt.Errorf("cache: encode target details for %s: %w", rec.ID, err)
	}
	history := rec.ChatHistory
	if history == nil {
		history = []models.ChatMessage{}
	}
	chat, err := json.Marshal(history)
	if err != nil {
		return models.NegotiationSnapshot{}, fmt.Errorf("cache: encode chat history for %s: %w", rec.ID, err)
	}
	return models.NegotiationSnapshot{
		NegotiationID: rec.ID,
		Name:          rec.Name,
		Status:        rec.Status,
		BuyerEmail:    rec.BuyerEmail,
		SupplierEmail: rec.SupplierEmail,
		TargetDetails: string(details),
		ChatHistory:   string(chat),
		RecordCreated: string(rec.CreatedAt),
		RecordUpdated: string(rec.UpdatedAt),
		FetchedAt:     now,
	}, nil
}

// fromSnapshot decodes a snapshot; undecodable columns yield empty values.
func fromSnapshot(snap models.NegotiationSnapshot) models.Negotiation {
	rec := models.Negotiation{
		ID:            snap.NegotiationID,
		Name:          snap.Name,
		Status:        snap.Status,
		BuyerEmail:    snap.BuyerEmail,
		SupplierEmail: snap.SupplierEmail,
		CreatedAt:     models.Timestamp(snap.RecordCreated),
		UpdatedAt:     models.Timestamp(snap.RecordUpdated),
		FromCache:     true,
	}
	_ = rec.TargetDetails.UnmarshalJSON([]byte(snap.TargetDetails))
	if err := json.Unmarshal([]byte(snap.ChatHistory), &rec.ChatHistory); err != nil {
		rec.ChatHistory = nil
	}
	return rec
}
