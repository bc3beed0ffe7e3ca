package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
	"github.com/dkmln/parley/internal/store"
)

// Edit replaces the content of the requester's own message and stamps
// EditedAt. Editing someone else's message or a missing message fails
// without mutation.
func (c *Coordinator) Edit(ctx context.Context, requester domain.UserID, id domain.MessageID, newContent string) ([]Notification, error) {
	const op = "coordinator.edit"

	m, err := c.getMessage(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if m.SenderID != requester {
		return nil, E(KindAuthorization, op, "only the sender may edit a message")
	}

	now := time.Now().UTC()
	if err := c.Messages.UpdateContent(ctx, id, newContent, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(KindNotFound, op, "message not found")
		}
		return nil, Wrap(KindPersistence, op, err)
	}
	m.Content = newContent
	m.EditedAt = &now

	dto := c.messageDTO(ctx, m, nil, nil)
	return []Notification{NotifyRoom(m.RoomID, core.MessageUpdated(dto))}, nil
}

// Delete removes the requester's own message. Associated blobs are
// released first, best-effort: a release failure is logged and never
// blocks the delete. The deletion event carries ids only, never content.
func (c *Coordinator) Delete(ctx context.Context, requester domain.UserID, id domain.MessageID) ([]Notification, error) {
	const op = "coordinator.delete"

	m, err := c.getMessage(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if m.SenderID != requester {
		return nil, E(KindAuthorization, op, "only the sender may delete a message")
	}

	for _, a := range m.Attachments {
		if a.StorageID == "" {
			continue
		}
		if err := c.Blobs.Delete(ctx, a.StorageID); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("message", string(id)).Str("blob", a.StorageID).Msg("release attachment blob")
		}
	}

	if err := c.Messages.DeleteMessage(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(KindNotFound, op, "message not found")
		}
		return nil, Wrap(KindPersistence, op, err)
	}

	log.Info().Str("module", "app.coordinator").Str("message", string(id)).Str("room", string(m.RoomID)).Msg("message deleted")
	return []Notification{NotifyRoom(m.RoomID, core.MessageDeleted(id, m.RoomID))}, nil
}

// MarkRead idempotently adds the reader's receipt, announces the read
// to the room, and pushes the recomputed unread count to the reader's
// own connections only. Unread is a personal projection.
func (c *Coordinator) MarkRead(ctx context.Context, uid domain.UserID, roomID domain.RoomID, id domain.MessageID) ([]Notification, error) {
	const op = "coordinator.markread"

	m, err := c.getMessage(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if m.RoomID != roomID {
		return nil, E(KindValidation, op, "message is not in the given room")
	}
	member, err := c.Rooms.IsMember(ctx, roomID, uid)
	if err != nil {
		return nil, Wrap(KindPersistence, op, err)
	}
	if !member {
		return nil, E(KindAuthorization, op, "reader is not a room member")
	}

	if err := c.Messages.AddReceipt(ctx, id, uid); err != nil {
		return nil, Wrap(KindPersistence, op, err)
	}

	notifications := []Notification{NotifyRoom(roomID, core.MessageRead(id, roomID, uid))}
	if n, ok := c.unreadPush(ctx, roomID, uid); ok {
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// ToggleFavorite idempotently sets or clears the requester's favorite
// flag and broadcasts the updated message.
func (c *Coordinator) ToggleFavorite(ctx context.Context, uid domain.UserID, id domain.MessageID, want bool) ([]Notification, error) {
	const op = "coordinator.favorite"

	m, err := c.getMessage(ctx, op, id)
	if err != nil {
		return nil, err
	}
	member, err := c.Rooms.IsMember(ctx, m.RoomID, uid)
	if err != nil {
		return nil, Wrap(KindPersistence, op, err)
	}
	if !member {
		return nil, E(KindAuthorization, op, "user is not a room member")
	}

	if err := c.Messages.SetFavorite(ctx, id, uid, want); err != nil {
		return nil, Wrap(KindPersistence, op, err)
	}

	// Reload so the broadcast carries the store's view of the flag sets.
	m, err = c.getMessage(ctx, op, id)
	if err != nil {
		return nil, err
	}
	dto := c.messageDTO(ctx, m, nil, nil)
	return []Notification{NotifyRoom(m.RoomID, core.MessageUpdated(dto))}, nil
}
