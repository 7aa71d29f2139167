package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SOS is a raised emergency alert. It is never deleted, only marked
// resolved; resolution is a one-way latch enforced by conditional updates.
type SOS struct {
	ID         string `gorm:"primaryKey;size:36"`
	UserID     string `gorm:"index;size:36"` // creator
	Message    string
	Latitude   float64
	Longitude  float64
	IsResolved bool `gorm:"index"`
	ResolvedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Responders []SOSResponder `gorm:"foreignKey:SOSID"`
}

func (s *SOS) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// SOSResponder records one acceptance. The unique index makes accepting
// idempotent under concurrency; acceptance order is insertion order.
type SOSResponder struct {
	ID        uint   `gorm:"primaryKey"`
	SOSID     string `gorm:"uniqueIndex:idx_sos_responder;size:36"`
	UserID    string `gorm:"uniqueIndex:idx_sos_responder;size:36"`
	CreatedAt time.Time
}
