package models

import (
	"time"
)

// EmailCategory is the closed set of categories assigned by the classifier
type EmailCategory string

const (
	CategoryInterested    EmailCategory = "Interested"
	CategoryMeetingBooked EmailCategory = "Meeting Booked"
	CategoryNotInterested EmailCategory = "Not Interested"
	CategorySpam          EmailCategory = "Spam"
	CategoryOutOfOffice   EmailCategory = "Out of Office"
	CategoryUncategorized EmailCategory = "Uncategorized"
)

// Categories lists every valid category value
func Categories() []EmailCategory {
	return []EmailCategory{
		CategoryInterested,
		CategoryMeetingBooked,
		CategoryNotInterested,
		CategorySpam,
		CategoryOutOfOffice,
		CategoryUncategorized,
	}
}

// AttachmentMeta describes one attachment. Only metadata is retained,
// attachment bytes are never stored.
type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	CID         string `json:"cid,omitempty"`
}

// Email is the canonical, storage-ready representation of a mail message.
//
// DocID is derived from account id + server UID and is therefore stable across
// refetches. MessageID is server-provided and may collide across accounts, so
// it is only a dedup key when scoped by AccountID. Both carry unique indexes;
// inserts rely on ON CONFLICT DO NOTHING for race-free dedup.
type Email struct {
	ID          uint          `gorm:"primaryKey" json:"-"`
	DocID       string        `gorm:"uniqueIndex;size:255;not null" json:"id"`
	AccountID   string        `gorm:"size:100;not null;uniqueIndex:idx_account_message" json:"account_id"`
	MessageID   string        `gorm:"size:255;not null;uniqueIndex:idx_account_message" json:"message_id"`
	Folder      string        `gorm:"size:100;default:'INBOX'" json:"folder"`
	Subject     string        `gorm:"size:500" json:"subject"`
	FromAddr    string        `gorm:"size:255" json:"from"`
	ToAddrs     string        `gorm:"type:text" json:"to"`  // JSON array stored as string
	CcAddrs     string        `gorm:"type:text" json:"cc"`  // JSON array stored as string
	BccAddrs    string        `gorm:"type:text" json:"bcc"` // JSON array stored as string
	Date        time.Time     `gorm:"index" json:"date"`
	Body        string        `gorm:"type:text" json:"body_text"`
	HTMLBody    string        `gorm:"type:text" json:"body_html"`
	Attachments string        `gorm:"type:text" json:"attachments"` // JSON array of AttachmentMeta
	Flags       string        `gorm:"type:text" json:"flags"`       // JSON array stored as string
	Category    EmailCategory `gorm:"size:50;index" json:"category,omitempty"`
	AIScore     float64       `json:"ai_score"`
	IndexedAt   time.Time     `json:"indexed_at"`
	UID         uint32        `gorm:"column:uid" json:"uid"`
	CreatedAt   time.Time     `json:"created_at"`
}
