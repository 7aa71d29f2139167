package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification classifications.
const (
	NotificationTypeAlert          = "alert"
	NotificationTypeReminder       = "reminder"
	NotificationTypeReadReceiptAck = "read_receipt_ack"
)

// JSONMap stores arbitrary structured metadata as a JSON column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(data, m)
}

// Notification is the durable per-recipient record; it is the guaranteed
// artifact of a dispatch regardless of live or email channel outcome.
// Invariant: ReadAt is set iff IsRead is true.
type Notification struct {
	ID          string `gorm:"primaryKey;size:36"`
	RecipientID string `gorm:"index;size:36"`
	Type        string `gorm:"index;size:32"`
	Title       string
	Body        string
	RelatedID   string  `gorm:"index;size:36"` // alert id
	Metadata    JSONMap `gorm:"type:json"`
	IsRead      bool    `gorm:"index"`
	ReadAt      *time.Time
	CreatedAt   time.Time `gorm:"index"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// AutoMigrate creates the engine's tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &SOS{}, &SOSResponder{}, &Notification{})
}
