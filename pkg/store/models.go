package store

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntryModel is one persisted key. Values are stored as JSON strings so
// raw ids and JSON documents share a jsonb column.
type KVEntryModel struct {
	Key       string         `gorm:"primaryKey"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (KVEntryModel) TableName() string { return "workspace_state" }
