package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
	"github.com/dkmln/parley/internal/store"
)

// SendInput is one send-message command from a connection.
// CorrelationID is the client-chosen token echoed back in the ack so
// the client can reconcile its optimistic local copy.
type SendInput struct {
	SenderID      domain.UserID
	RoomID        domain.RoomID
	Content       string
	Attachments   []domain.Attachment
	ReplyToID     *domain.MessageID
	Forwarded     bool
	CorrelationID string
}

// Send validates, persists, then broadcasts. On persistence failure no
// event is emitted anywhere: the caller surfaces an error ack and the
// client must treat the message as not sent.
func (c *Coordinator) Send(ctx context.Context, in SendInput) (*domain.Message, []Notification, error) {
	const op = "coordinator.send"

	room, err := c.Rooms.GetRoom(ctx, in.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, E(KindNotFound, op, "room not found")
		}
		return nil, nil, Wrap(KindPersistence, op, err)
	}
	if !room.HasMember(in.SenderID) {
		return nil, nil, E(KindAuthorization, op, "sender is not a room member")
	}

	sender, err := c.Users.GetUser(ctx, in.SenderID)
	if err != nil {
		return nil, nil, Wrap(KindPersistence, op, err)
	}

	// A reply target must resolve within the same room; anything else is
	// a data-integrity error rejected before any mutation.
	var replyTo *domain.Message
	if in.ReplyToID != nil {
		replyTo, err = c.Messages.GetMessage(ctx, *in.ReplyToID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil, E(KindValidation, op, "reply target not found")
			}
			return nil, nil, Wrap(KindPersistence, op, err)
		}
		if replyTo.RoomID != in.RoomID {
			return nil, nil, E(KindValidation, op, "reply target is in a different room")
		}
	}

	msg := domain.NewMessage(in.RoomID, in.SenderID, in.Content, in.Attachments, in.ReplyToID, in.Forwarded)
	if err := c.Messages.CreateMessage(ctx, msg); err != nil {
		return nil, nil, Wrap(KindPersistence, op, err)
	}

	log.Info().Str("module", "app.coordinator").Str("room", string(in.RoomID)).Str("sender", string(in.SenderID)).Str("message", string(msg.ID)).Msg("message persisted")

	dto := c.messageDTO(ctx, msg, sender, replyTo)
	notifications := []Notification{NotifyRoom(in.RoomID, core.NewMessage(dto))}
	for _, member := range room.Members {
		if member == in.SenderID {
			continue
		}
		if n, ok := c.unreadPush(ctx, in.RoomID, member); ok {
			notifications = append(notifications, n)
		}
	}
	return msg, notifications, nil
}
