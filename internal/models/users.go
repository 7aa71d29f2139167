package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the durable identity record. The live-connection handle is NOT
// stored here: presence is an ephemeral index owned by the websocket hub,
// keyed by this record's ID.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string
	Email        string `gorm:"uniqueIndex;size:255"`
	PasswordHash string
	Phone        string
	Carrier      string // for the SMS-via-email gateway; may be empty
	Role         string `gorm:"index;size:32"` // requester | responder | administrator
	IsVerified   bool
	IsApproved   bool

	// Login passcode challenge; cleared on successful verification.
	OTPCode      *string `gorm:"size:8"`
	OTPExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
