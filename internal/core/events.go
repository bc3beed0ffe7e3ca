package core

import (
	"encoding/json"
	"time"

	"github.com/dkmln/parley/internal/domain"
)

// Server-to-client event kinds. One constructor per kind below; the
// set is closed so malformed payloads die at the boundary instead of
// surfacing as nil fields downstream.
const (
	EvAck            = "ack"
	EvNewMessage     = "new-message"
	EvMessageUpdated = "message-updated"
	EvMessageDeleted = "message-deleted"
	EvMessageRead    = "message-read"
	EvTyping         = "typing"
	EvUserUnread     = "user-unread"
	EvPresence       = "presence"
	EvUserList       = "user-list"
	EvError          = "error"
)

// UserDTO is the read-only user view shipped inside events.
type UserDTO struct {
	ID        domain.UserID `json:"id"`
	Username  string        `json:"username"`
	AvatarURL string        `json:"avatar_url,omitempty"`
}

// ReplyDTO is the resolved reply target embedded in a message event.
type ReplyDTO struct {
	ID       domain.MessageID `json:"id"`
	SenderID domain.UserID    `json:"sender_id"`
	Content  string           `json:"content"`
}

// MessageDTO is the fully populated message broadcast to a room:
// sender and reply target are resolved before it ever leaves the server.
type MessageDTO struct {
	ID          domain.MessageID    `json:"id"`
	RoomID      domain.RoomID       `json:"room_id"`
	Sender      UserDTO             `json:"sender"`
	Content     string              `json:"content"`
	Attachments []domain.Attachment `json:"attachments"`
	CreatedAt   time.Time           `json:"created_at"`
	EditedAt    *time.Time          `json:"edited_at,omitempty"`
	ReadBy      []domain.UserID     `json:"read_by"`
	FavoritedBy []domain.UserID     `json:"favorited_by"`
	Forwarded   bool                `json:"forwarded"`
	ReplyTo     *ReplyDTO           `json:"reply_to,omitempty"`
}

type AckEvent struct {
	Type          string           `json:"type"`
	Status        string           `json:"status"` // "ok" or "error"
	CorrelationID string           `json:"correlation_id"`
	MessageID     domain.MessageID `json:"message_id,omitempty"`
	Error         string           `json:"error,omitempty"`
}

func AckOK(correlationID string, id domain.MessageID) AckEvent {
	return AckEvent{Type: EvAck, Status: "ok", CorrelationID: correlationID, MessageID: id}
}

func AckError(correlationID, reason string) AckEvent {
	return AckEvent{Type: EvAck, Status: "error", CorrelationID: correlationID, Error: reason}
}

type NewMessageEvent struct {
	Type    string     `json:"type"`
	Message MessageDTO `json:"message"`
}

func NewMessage(msg MessageDTO) NewMessageEvent {
	return NewMessageEvent{Type: EvNewMessage, Message: msg}
}

type MessageUpdatedEvent struct {
	Type    string     `json:"type"`
	Message MessageDTO `json:"message"`
}

func MessageUpdated(msg MessageDTO) MessageUpdatedEvent {
	return MessageUpdatedEvent{Type: EvMessageUpdated, Message: msg}
}

// MessageDeletedEvent carries ids only, never the removed content.
type MessageDeletedEvent struct {
	Type      string           `json:"type"`
	MessageID domain.MessageID `json:"message_id"`
	RoomID    domain.RoomID    `json:"room_id"`
}

func MessageDeleted(id domain.MessageID, roomID domain.RoomID) MessageDeletedEvent {
	return MessageDeletedEvent{Type: EvMessageDeleted, MessageID: id, RoomID: roomID}
}

type MessageReadEvent struct {
	Type      string           `json:"type"`
	MessageID domain.MessageID `json:"message_id"`
	RoomID    domain.RoomID    `json:"room_id"`
	UserID    domain.UserID    `json:"user_id"`
}

func MessageRead(id domain.MessageID, roomID domain.RoomID, uid domain.UserID) MessageReadEvent {
	return MessageReadEvent{Type: EvMessageRead, MessageID: id, RoomID: roomID, UserID: uid}
}

type TypingEvent struct {
	Type     string        `json:"type"`
	RoomID   domain.RoomID `json:"room_id"`
	UserID   domain.UserID `json:"user_id"`
	IsTyping bool          `json:"is_typing"`
}

func Typing(roomID domain.RoomID, uid domain.UserID, isTyping bool) TypingEvent {
	return TypingEvent{Type: EvTyping, RoomID: roomID, UserID: uid, IsTyping: isTyping}
}

// UserUnreadEvent is a personal projection: pushed only to the owning
// user's connections, never room-broadcast.
type UserUnreadEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"room_id"`
	Unread int           `json:"unread"`
}

func UserUnread(roomID domain.RoomID, unread int) UserUnreadEvent {
	return UserUnreadEvent{Type: EvUserUnread, RoomID: roomID, Unread: unread}
}

type PresenceEvent struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"user_id"`
	Online bool          `json:"online"`
}

func Presence(uid domain.UserID, online bool) PresenceEvent {
	return PresenceEvent{Type: EvPresence, UserID: uid, Online: online}
}

// UserListEntry is one row of the personalized directory sent on connect.
// For 1:1 peers Unread counts messages in the shared direct room.
type UserListEntry struct {
	User   UserDTO       `json:"user"`
	Online bool          `json:"online"`
	RoomID domain.RoomID `json:"room_id,omitempty"`
	Unread int           `json:"unread"`
}

// RoomListEntry is one group room with the viewer's unread count.
type RoomListEntry struct {
	Room   domain.Room `json:"room"`
	Unread int         `json:"unread"`
}

type UserListEvent struct {
	Type  string          `json:"type"`
	Users []UserListEntry `json:"users"`
	Rooms []RoomListEntry `json:"rooms"`
}

func UserList(users []UserListEntry, rooms []RoomListEntry) UserListEvent {
	return UserListEvent{Type: EvUserList, Users: users, Rooms: rooms}
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Error(code, message string) ErrorEvent {
	return ErrorEvent{Type: EvError, Code: code, Message: message}
}

// Marshal encodes an event for the wire.
func Marshal(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
