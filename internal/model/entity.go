package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

type TicketStatus string

const (
	TicketStatusNew     TicketStatus = "new"
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusPending TicketStatus = "pending"
	TicketStatusClosed  TicketStatus = "closed"
)

// Categories the classifier is allowed to produce. A user-set category goes
// through the same list.
const (
	CategoryBilling   = "Billing"
	CategoryTechnical = "Technical"
	CategoryAccount   = "Account"
	CategoryOther     = "Other"
)

func Statuses() []TicketStatus {
	return []TicketStatus{TicketStatusNew, TicketStatusOpen, TicketStatusPending, TicketStatusClosed}
}

func Categories() []string {
	return []string{CategoryBilling, CategoryTechnical, CategoryAccount, CategoryOther}
}

func ValidStatus(s string) bool {
	switch TicketStatus(s) {
	case TicketStatusNew, TicketStatusOpen, TicketStatusPending, TicketStatusClosed:
		return true
	}
	return false
}

func ValidCategory(c string) bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type Ticket struct {
	ID      string       `gorm:"primaryKey;size:26" json:"id"` // ULID, time-ordered
	Subject string       `gorm:"type:varchar(200);not null" json:"subject"`
	Body    string       `gorm:"type:text;not null" json:"body"`
	Status  TicketStatus `gorm:"type:varchar(32);not null;default:new;index:idx_tickets_status_category" json:"status"`

	Category *string `gorm:"type:varchar(50);index:idx_tickets_status_category" json:"category"`
	Note     *string `gorm:"type:text" json:"note"`

	// Classifier-owned fields. Explanation and Confidence are rewritten on
	// every successful classification run; Category only while
	// ManualCategoryAt is null.
	Explanation *string  `gorm:"type:text" json:"explanation"`
	Confidence  *float64 `gorm:"type:numeric(3,2)" json:"confidence"`

	ManualCategoryAt *time.Time `json:"manual_category_at"`
	ClassifiedAt     *time.Time `json:"classified_at"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a ULID so that ids sort lexicographically by creation
// time. Explicitly set ids (tests, imports) are kept.
func (t *Ticket) BeforeCreate(*gorm.DB) error {
	if t.ID != "" {
		return nil
	}
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err != nil {
		return err
	}
	t.ID = id.String()
	return nil
}
