package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/blob"
	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
	"github.com/dkmln/parley/internal/store"
)

// Coordinator exposes the event-level protocol (send, edit, delete,
// read, favorite, typing, presence) by composing the registry, fanout,
// stores and debouncer. Operations mutate state through the store
// first and return the notifications to emit; broadcast is always the
// last step, gated on successful persistence.
type Coordinator struct {
	Registry *Registry
	Fanout   *Fanout
	Messages store.MessageStore
	Rooms    store.RoomStore
	Users    store.UserStore
	Unread   *Unread
	Typing   *Typing
	Blobs    blob.Store
}

// TypingSignal relays a typing indicator to the room. A start (re)arms
// the connection's auto-clear timer; an explicit stop cancels it. The
// stop event for an expired window is emitted by the Typing component
// itself.
func (c *Coordinator) TypingSignal(connID core.ConnID, uid domain.UserID, roomID domain.RoomID, isTyping bool) []Notification {
	if isTyping {
		c.Typing.Start(connID, uid, roomID)
		return []Notification{NotifyRoom(roomID, core.Typing(roomID, uid, true))}
	}
	// The stop is emitted here; cancel without a second emission.
	c.Typing.Cancel(connID)
	return []Notification{NotifyRoom(roomID, core.Typing(roomID, uid, false))}
}

// getMessage maps store lookups into the error taxonomy.
func (c *Coordinator) getMessage(ctx context.Context, op string, id domain.MessageID) (*domain.Message, error) {
	m, err := c.Messages.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(KindNotFound, op, "message not found")
		}
		return nil, Wrap(KindPersistence, op, err)
	}
	return m, nil
}

func userDTO(u *domain.User) core.UserDTO {
	return core.UserDTO{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

// messageDTO builds the fully populated wire form: sender and reply
// target are resolved before the event leaves the server. A reply
// target that cannot be loaded is shipped unresolved rather than
// blocking the broadcast.
func (c *Coordinator) messageDTO(ctx context.Context, m *domain.Message, sender *domain.User, replyTo *domain.Message) core.MessageDTO {
	if sender == nil {
		u, err := c.Users.GetUser(ctx, m.SenderID)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("user", string(m.SenderID)).Msg("resolve sender")
			u = &domain.User{ID: m.SenderID}
		}
		sender = u
	}
	dto := core.MessageDTO{
		ID:          m.ID,
		RoomID:      m.RoomID,
		Sender:      userDTO(sender),
		Content:     m.Content,
		Attachments: m.Attachments,
		CreatedAt:   m.CreatedAt,
		EditedAt:    m.EditedAt,
		ReadBy:      m.ReadBy,
		FavoritedBy: m.FavoritedBy,
		Forwarded:   m.Forwarded,
	}
	if m.ReplyToID != nil {
		if replyTo == nil {
			rt, err := c.Messages.GetMessage(ctx, *m.ReplyToID)
			if err != nil {
				log.Warn().Err(err).Str("module", "app.coordinator").Str("message", string(*m.ReplyToID)).Msg("resolve reply target")
			} else {
				replyTo = rt
			}
		}
		if replyTo != nil {
			dto.ReplyTo = &core.ReplyDTO{ID: replyTo.ID, SenderID: replyTo.SenderID, Content: replyTo.Content}
		}
	}
	return dto
}

// unreadPush builds a user-unread notification for one member in one
// room. A failed recomputation is logged and skipped: the count push is
// auxiliary to an already persisted and broadcast mutation.
func (c *Coordinator) unreadPush(ctx context.Context, roomID domain.RoomID, uid domain.UserID) (Notification, bool) {
	n, err := c.Unread.ForRoom(ctx, roomID, uid)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Str("user", string(uid)).Msg("recompute unread")
		return Notification{}, false
	}
	return NotifyUser(uid, core.UserUnread(roomID, n)), true
}
