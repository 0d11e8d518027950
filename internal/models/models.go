package models

import "time"

// Setting is one namespaced string value persisted for the device, the
// desktop counterpart of an NVS string entry.
type Setting struct {
	ID        uint   `gorm:"primaryKey"`
	Namespace string `gorm:"uniqueIndex:idx_namespace_name;not null"`
	Name      string `gorm:"uniqueIndex:idx_namespace_name;not null"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
