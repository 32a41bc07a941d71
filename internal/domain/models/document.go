package models

import (
	"time"
)

// EditingStatus is the editorial lifecycle stage of a document.
type EditingStatus string

const (
	StatusDraft     EditingStatus = "draft"
	StatusEditing   EditingStatus = "editing"
	StatusReview    EditingStatus = "review"
	StatusFinal     EditingStatus = "final"
	StatusPublished EditingStatus = "published"
)

// ValidStatuses lists every status accepted on input. StatusPublished is
// accepted but normalized to StatusFinal before hitting the store, since
// downstream consumers do not support it yet.
var ValidStatuses = []interface{}{
	StatusDraft,
	StatusEditing,
	StatusReview,
	StatusFinal,
	StatusPublished,
}

// IsValid reports whether s is a recognized editing status.
func (s EditingStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusEditing, StatusReview, StatusFinal, StatusPublished:
		return true
	}
	return false
}

// Document is the persisted article entity under edit. Version is a
// monotonic counter bumped by exactly 1 per committed save; the store is
// the authority for it, clients only ever adopt the value it returns.
type Document struct {
	ID           string        `json:"id" db:"id"`
	OwnerID      string        `json:"owner_id" db:"owner_id"`
	Content      string        `json:"content" db:"content"`
	Version      int           `json:"version" db:"version"`
	Status       EditingStatus `json:"status" db:"status"`
	LastEditedBy string        `json:"last_edited_by" db:"last_edited_by"`
	LastEditedAt time.Time     `json:"last_edited_at" db:"last_edited_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// DocumentStatus is the lightweight status projection returned by the
// status endpoint, without the content blob.
type DocumentStatus struct {
	ID           string        `json:"id"`
	Status       EditingStatus `json:"status"`
	Version      int           `json:"version"`
	LastEditedBy string        `json:"last_edited_by"`
	LastEditedAt time.Time     `json:"last_edited_at"`
}
