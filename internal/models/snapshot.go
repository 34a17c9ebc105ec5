package models

import "time"

// NegotiationSnapshot is the locally cached copy of the last negotiation
// record fetched from the backend. Target details and chat history are kept
// as the JSON the backend returned so a cached record decodes exactly like a
// live one.
type NegotiationSnapshot struct {
	NegotiationID string    `gorm:"primaryKey;size:64"`
	Name          string    `gorm:"size:256"`
	Status        string    `gorm:"size:16;index"`
	BuyerEmail    string    `gorm:"size:256;index"`
	SupplierEmail string    `gorm:"size:256"`
	TargetDetails string    `gorm:"type:text"` // JSON object
	ChatHistory   string    `gorm:"type:text"` // JSON array of ChatMessage
	RecordCreated string    `gorm:"size:64"`   // backend created_at, verbatim
	RecordUpdated string    `gorm:"size:64"`   // backend updated_at, verbatim
	FetchedAt     time.Time `gorm:"index"`
}
