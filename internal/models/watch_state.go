package models

import "time"

// WatchState records the last status the conclusion watcher saw for a
// negotiation, so a restarted watcher does not announce the same
// transition twice.
type WatchState struct {
	NegotiationID string    `gorm:"primaryKey;size:64"`
	BuyerEmail    string    `gorm:"size:256;index"`
	Status        string    `gorm:"size:16"`
	SeenAt        time.Time `gorm:"index"`
}
