package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/app"
	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
)

// Client-to-server command kinds. The set is closed; anything else is
// rejected at the boundary.
const (
	cmdJoinRoom    = "join-room"
	cmdLeaveRoom   = "leave-room"
	cmdSendMessage = "send-message"
	cmdEditMessage = "edit-message"
	cmdDelMessage  = "delete-message"
	cmdTyping      = "typing"
	cmdMessageRead = "message-read"
	cmdFavorite    = "favorite-message"
	cmdPing        = "ping"
)

func (ctl *Controller) handleCommand(ctx context.Context, uid domain.UserID, connID core.ConnID, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("conn", string(connID)).Msg("bad json")
		ctl.sendEvent(c, core.Error("validation", "malformed payload"))
		return
	}

	switch env.Type {
	case cmdJoinRoom:
		ctl.handleJoinRoom(ctx, uid, connID, c, data)
	case cmdLeaveRoom:
		ctl.handleLeaveRoom(connID, c, data)
	case cmdSendMessage:
		ctl.handleSendMessage(ctx, uid, c, data)
	case cmdEditMessage:
		ctl.handleEditMessage(ctx, uid, c, data)
	case cmdDelMessage:
		ctl.handleDeleteMessage(ctx, uid, c, data)
	case cmdTyping:
		ctl.handleTyping(uid, connID, c, data)
	case cmdMessageRead:
		ctl.handleMessageRead(ctx, uid, c, data)
	case cmdFavorite:
		ctl.handleFavorite(ctx, uid, c, data)
	case cmdPing:
		ctl.sendEvent(c, map[string]string{"type": "pong"})
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown command")
		ctl.sendEvent(c, core.Error("validation", "unknown command kind"))
	}
}

func (ctl *Controller) handleJoinRoom(ctx context.Context, uid domain.UserID, connID core.ConnID, c *wsConn, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if !ctl.decode(c, data, &p) || p.RoomID == "" {
		ctl.sendEvent(c, core.Error("validation", "room_id required"))
		return
	}
	if err := ctl.Coord.JoinRoom(ctx, connID, uid, domain.RoomID(p.RoomID)); err != nil {
		ctl.sendOpError(c, err)
	}
}

func (ctl *Controller) handleLeaveRoom(connID core.ConnID, c *wsConn, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if !ctl.decode(c, data, &p) || p.RoomID == "" {
		ctl.sendEvent(c, core.Error("validation", "room_id required"))
		return
	}
	ctl.Coord.LeaveRoom(connID, domain.RoomID(p.RoomID))
}

type sendPayload struct {
	RoomID        string              `json:"room_id"`
	Content       string              `json:"content"`
	Attachments   []domain.Attachment `json:"attachments"`
	ReplyToID     *string             `json:"reply_to_id"`
	Forwarded     bool                `json:"forwarded"`
	CorrelationID string              `json:"correlation_id"`
}

// handleSendMessage always answers with an ack, success or failure, so
// the client can distinguish "error" from "no response yet".
func (ctl *Controller) handleSendMessage(ctx context.Context, uid domain.UserID, c *wsConn, data []byte) {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendEvent(c, core.AckError("", "malformed payload"))
		return
	}
	if p.RoomID == "" || (p.Content == "" && len(p.Attachments) == 0) {
		ctl.sendEvent(c, core.AckError(p.CorrelationID, "room_id and content required"))
		return
	}
	if !ctl.Limiter.Allow(uid) {
		ctl.sendEvent(c, core.AckError(p.CorrelationID, "rate limited"))
		return
	}

	in := app.SendInput{
		SenderID:      uid,
		RoomID:        domain.RoomID(p.RoomID),
		Content:       p.Content,
		Attachments:   p.Attachments,
		Forwarded:     p.Forwarded,
		CorrelationID: p.CorrelationID,
	}
	if p.ReplyToID != nil {
		v := domain.MessageID(*p.ReplyToID)
		in.ReplyToID = &v
	}

	msg, notifications, err := ctl.Coord.Send(ctx, in)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("user", string(uid)).Msg("send rejected")
		ctl.sendEvent(c, core.AckError(p.CorrelationID, app.KindOf(err).Code()))
		return
	}
	// Ack the sender first, then fan out.
	ctl.sendEvent(c, core.AckOK(p.CorrelationID, msg.ID))
	ctl.Dispatch.Apply(notifications)
}

func (ctl *Controller) handleEditMessage(ctx context.Context, uid domain.UserID, c *wsConn, data []byte) {
	var p struct {
		MessageID string `json:"message_id"`
		Content   string `json:"content"`
	}
	if !ctl.decode(c, data, &p) || p.MessageID == "" || p.Content == "" {
		ctl.sendEvent(c, core.Error("validation", "message_id and content required"))
		return
	}
	notifications, err := ctl.Coord.Edit(ctx, uid, domain.MessageID(p.MessageID), p.Content)
	if err != nil {
		ctl.sendOpError(c, err)
		return
	}
	ctl.Dispatch.Apply(notifications)
}

func (ctl *Controller) handleDeleteMessage(ctx context.Context, uid domain.UserID, c *wsConn, data []byte) {
	var p struct {
		MessageID string `json:"message_id"`
	}
	if !ctl.decode(c, data, &p) || p.MessageID == "" {
		ctl.sendEvent(c, core.Error("validation", "message_id required"))
		return
	}
	notifications, err := ctl.Coord.Delete(ctx, uid, domain.MessageID(p.MessageID))
	if err != nil {
		ctl.sendOpError(c, err)
		return
	}
	ctl.Dispatch.Apply(notifications)
}

func (ctl *Controller) handleTyping(uid domain.UserID, connID core.ConnID, c *wsConn, data []byte) {
	var p struct {
		RoomID   string `json:"room_id"`
		IsTyping bool   `json:"is_typing"`
	}
	if !ctl.decode(c, data, &p) || p.RoomID == "" {
		ctl.sendEvent(c, core.Error("validation", "room_id required"))
		return
	}
	ctl.Dispatch.Apply(ctl.Coord.TypingSignal(connID, uid, domain.RoomID(p.RoomID), p.IsTyping))
}

func (ctl *Controller) handleMessageRead(ctx context.Context, uid domain.UserID, c *wsConn, data []byte) {
	var p struct {
		RoomID    string `json:"room_id"`
		MessageID string `json:"message_id"`
	}
	if !ctl.decode(c, data, &p) || p.RoomID == "" || p.MessageID == "" {
		ctl.sendEvent(c, core.Error("validation", "room_id and message_id required"))
		return
	}
	notifications, err := ctl.Coord.MarkRead(ctx, uid, domain.RoomID(p.RoomID), domain.MessageID(p.MessageID))
	if err != nil {
		ctl.sendOpError(c, err)
		return
	}
	ctl.Dispatch.Apply(notifications)
}

func (ctl *Controller) handleFavorite(ctx context.Context, uid domain.UserID, c *wsConn, data []byte) {
	var p struct {
		MessageID string `json:"message_id"`
		Favorite  bool   `json:"favorite"`
	}
	if !ctl.decode(c, data, &p) || p.MessageID == "" {
		ctl.sendEvent(c, core.Error("validation", "message_id required"))
		return
	}
	notifications, err := ctl.Coord.ToggleFavorite(ctx, uid, domain.MessageID(p.MessageID), p.Favorite)
	if err != nil {
		ctl.sendOpError(c, err)
		return
	}
	ctl.Dispatch.Apply(notifications)
}

func (ctl *Controller) decode(c *wsConn, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("bad payload")
		return false
	}
	return true
}

// sendOpError surfaces a classified failure to the originating
// connection only; nothing is broadcast.
func (ctl *Controller) sendOpError(c *wsConn, err error) {
	ctl.sendEvent(c, core.Error(app.KindOf(err).Code(), err.Error()))
}

func (ctl *Controller) sendEvent(c *wsConn, v any) {
	frame, err := core.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("marshal event")
		return
	}
	_ = c.TrySend(frame)
}
