package model

import (
	"time"
)

// Document status values.
const (
	DocStatusPending    = "pending"
	DocStatusServed     = "served"
	DocStatusDownloaded = "downloaded"
)

// Document is the portal-side record of a served legal document.
// Byte content lives in the external document store; this row carries
// the metadata the delivery flow and the proof artifacts need.
type Document struct {
	ID               string `gorm:"primaryKey;size:36"`
	OriginalFilename string `gorm:"size:255;not null"`
	StoredFilename   string `gorm:"size:255;not null;uniqueIndex"`
	FileSize         int64  `gorm:"not null"`
	ContentType      string `gorm:"size:100;default:application/pdf"`

	// SHA-256 of the uploaded bytes, computed by the document store on upload.
	ContentHash string `gorm:"size:64"`

	SenderID    string `gorm:"size:36;not null;index"`
	SenderEmail string `gorm:"size:255;not null"`
	SenderName  string `gorm:"size:255;not null"`

	RecipientEmail string `gorm:"size:255;not null;index"`
	RecipientName  string `gorm:"size:255"`

	MatterReference string `gorm:"size:255"`
	Description     string

	Status string `gorm:"size:50;default:pending"`

	CreatedAt    time.Time
	NotifiedAt   *time.Time
	ServedAt     *time.Time
	DownloadedAt *time.Time
}

// Served reports whether the document counts as served under ECTA s23:
// receipt occurs when the notification enters the recipient's system,
// not when they download.
func (d *Document) Served() bool {
	return d.ServedAt != nil || d.Status == DocStatusServed || d.Status == DocStatusDownloaded
}

// Downloaded reports whether the recipient has confirmed collection.
func (d *Document) Downloaded() bool {
	return d.DownloadedAt != nil
}

// User is an uploading member of the portal. Password and session
// mechanics live outside this service.
type User struct {
	ID        string `gorm:"primaryKey;size:36"`
	Email     string `gorm:"size:255;not null;uniqueIndex"`
	FullName  string `gorm:"size:255;not null"`
	Practice  string `gorm:"size:255"`
	Verified  bool   `gorm:"default:false"`
	CreatedAt time.Time
}
