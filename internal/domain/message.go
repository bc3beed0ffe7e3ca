package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageID string

// Attachment is embedded in its parent message and not independently
// addressable. StorageID keys the blob in external storage; releasing
// it is tied to the parent message's deletion.
type Attachment struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	MimeCategory string `json:"mime_category"`
	StorageID    string `json:"storage_id,omitempty"`
}

// Message is the persistent chat entity. SenderID is immutable after
// creation and ReadBy always contains the sender from creation on.
type Message struct {
	ID          MessageID    `json:"id"`
	RoomID      RoomID       `json:"room_id"`
	SenderID    UserID       `json:"sender_id"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"created_at"`
	EditedAt    *time.Time   `json:"edited_at,omitempty"`
	ReadBy      []UserID     `json:"read_by"`
	FavoritedBy []UserID     `json:"favorited_by"`
	Forwarded   bool         `json:"forwarded"`
	ReplyToID   *MessageID   `json:"reply_to_id,omitempty"`
	Deleted     bool         `json:"-"`
}

// NewMessage builds a message ready for persistence: server-assigned id,
// creation timestamp, attachments defaulted to empty, and the sender
// already present in ReadBy.
func NewMessage(roomID RoomID, senderID UserID, content string, attachments []Attachment, replyToID *MessageID, forwarded bool) *Message {
	if attachments == nil {
		attachments = []Attachment{}
	}
	return &Message{
		ID:          MessageID(uuid.NewString()),
		RoomID:      roomID,
		SenderID:    senderID,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
		ReadBy:      []UserID{senderID},
		FavoritedBy: []UserID{},
		Forwarded:   forwarded,
		ReplyToID:   replyToID,
	}
}

// ReadBy and FavoritedBy are small sets; linear scans are fine.

func (m *Message) IsReadBy(uid UserID) bool {
	for _, u := range m.ReadBy {
		if u == uid {
			return true
		}
	}
	return false
}

func (m *Message) IsFavoritedBy(uid UserID) bool {
	for _, u := range m.FavoritedBy {
		if u == uid {
			return true
		}
	}
	return false
}
