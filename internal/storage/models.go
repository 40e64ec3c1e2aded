package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a match lifecycle operation targets
// a match that is not in the required state. Confirmed and rejected are
// terminal.
var ErrInvalidTransition = errors.New("invalid state transition")

// Item directions.
const (
	TypeLost  = "lost"
	TypeFound = "found"
)

// Item statuses.
const (
	StatusActive   = "active"
	StatusMatched  = "matched"
	StatusResolved = "resolved"
)

// Match statuses.
const (
	MatchPending   = "pending"
	MatchConfirmed = "confirmed"
	MatchRejected  = "rejected"
)

// Item is a lost-or-found report. Embedding is an optional image embedding
// produced by an external vision model; MatchedWith points at the counterpart
// item once a match is confirmed.
type Item struct {
	ID            string
	Type          string // "lost" or "found"
	Title         string
	Description   string
	AIDescription string
	Category      string
	Location      string
	Color         string
	Brand         string
	Size          string
	Reward        float64
	Tags          string // JSON array stored as text
	Embedding     []float32
	Status        string // "active", "matched", "resolved"
	MatchedWith   string
	UserID        string
	ContactName   string
	ContactEmail  string
	ContactPhone  string
	DateOccurred  time.Time
	DateReported  time.Time
}

// Match is a scored candidate pairing between one lost and one found item.
// Its ID is the composite key lostItemID + ":" + foundItemID, which is
// collision-free for UUID item identifiers.
type Match struct {
	ID               string
	LostItemID       string
	FoundItemID      string
	Score            float64
	MatchedFields    string // JSON array stored as text
	Status           string // "pending", "confirmed", "rejected"
	NotificationSent bool
	AIConfidence     float64
	ImageScore       float64
	DateMatched      time.Time
}

// Notification is an outbound message tied to one party of a match (or a
// reminder tied to a single item).
type Notification struct {
	ID        string
	MatchID   string
	ItemID    string
	UserID    string
	Recipient string
	Type      string // "match_found", "reminder"
	Subject   string
	Body      string
	Delivered bool
	IsRead    bool
	CreatedAt time.Time
}

// Job is a queued unit of background work.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
