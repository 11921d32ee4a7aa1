package model

import "time"

const (
	StoreTypeQueue = "queue"
	StoreTypeDone  = "done"
)

// ItemRecord is one row of the backing table. ID is unique per Type
// partition; the same ID moves from "queue" to "done" over its lifecycle.
type ItemRecord struct {
	ID        string `gorm:"primaryKey"`
	Type      string `gorm:"primaryKey;index"`
	URL       string `gorm:"index"`
	Data      string
	CreatedAt time.Time `gorm:"index"`
}

func (ItemRecord) TableName() string {
	return "items"
}
