package models

import (
	"time"

	"gorm.io/gorm"

	"slotca/pkg/helper/gormx"
)

type Record struct {
	gorm.Model

	ID          string        `gorm:"primaryKey;size:22;check:id <> ''"`
	Serial      string        `gorm:"uniqueIndex;not null;size:64" validate:"required"`
	CommonName  string        `gorm:"not null;size:255" validate:"required"`
	Fingerprint string        `gorm:"not null;size:128" validate:"required"`
	Slot        string        `gorm:"size:32"`
	DNSNames    gormx.Strings `gorm:"size:1024"`
	Cert        []byte        `gorm:"not null" validate:"required"`
	NotBefore   time.Time
	NotAfter    time.Time
}

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		return genID(&r.ID)
	}
	return nil
}
