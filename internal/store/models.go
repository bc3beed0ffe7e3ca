package store

import "time"

// GORM records are kept separate from domain entities: the domain layer
// carries no persistence tags and the set-valued message fields (readBy,
// favoritedBy) live in child tables so unread counting stays a single
// COUNT query.

type userRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Username  string `gorm:"size:64;not null"`
	AvatarURL string `gorm:"size:256"`
	CreatedAt time.Time
}

func (userRecord) TableName() string { return "users" }

type roomRecord struct {
	ID      string `gorm:"primaryKey;size:36"`
	Name    string `gorm:"size:64"`
	IsGroup bool   `gorm:"not null"`
	// PairKey is the canonical "min|max" member pair of a 1:1 room; the
	// unique index enforces one direct room per unordered pair.
	PairKey   *string `gorm:"size:80;uniqueIndex"`
	CreatedAt time.Time
}

func (roomRecord) TableName() string { return "rooms" }

type roomMemberRecord struct {
	RoomID string `gorm:"primaryKey;size:36"`
	UserID string `gorm:"primaryKey;size:36;index"`
}

func (roomMemberRecord) TableName() string { return "room_members" }

type messageRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	RoomID    string `gorm:"size:36;index;not null"`
	SenderID  string `gorm:"size:36;not null"`
	Content   string
	Forwarded bool
	ReplyToID *string `gorm:"size:36"`
	CreatedAt time.Time
	EditedAt  *time.Time
	Deleted   bool `gorm:"not null;default:false"`
}

func (messageRecord) TableName() string { return "messages" }

type attachmentRecord struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	MessageID    string `gorm:"size:36;index;not null"`
	Position     int    `gorm:"not null"`
	URL          string `gorm:"size:512"`
	Filename     string `gorm:"size:256"`
	MimeCategory string `gorm:"size:32"`
	StorageID    string `gorm:"size:64"`
}

func (attachmentRecord) TableName() string { return "message_attachments" }

type receiptRecord struct {
	MessageID string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36;index"`
	ReadAt    time.Time
}

func (receiptRecord) TableName() string { return "message_receipts" }

type favoriteRecord struct {
	MessageID string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36;index"`
}

func (favoriteRecord) TableName() string { return "message_favorites" }

// Models lists every record type for AutoMigrate.
func Models() []any {
	return []any{
		&userRecord{},
		&roomRecord{},
		&roomMemberRecord{},
		&messageRecord{},
		&attachmentRecord{},
		&receiptRecord{},
		&favoriteRecord{},
	}
}
