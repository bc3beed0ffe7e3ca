package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/app"
	"github.com/dkmln/parley/internal/blob"
	"github.com/dkmln/parley/internal/domain"
	"github.com/dkmln/parley/internal/store"
)

type handlers struct {
	deps Deps
}

// createSession establishes the handshake identity. In a full
// deployment a credential service sits in front; here the endpoint
// accepts a display name and mints (or reuses) the user record.
func (h *handlers) createSession(c *gin.Context) {
	var req struct {
		UserID    string `json:"user_id"`
		Username  string `json:"username"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	var user *domain.User
	if req.UserID != "" {
		u, err := h.deps.Users.GetUser(c.Request.Context(), domain.UserID(req.UserID))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
			return
		}
		user = u
	} else {
		u, err := domain.NewUser(req.Username, req.AvatarURL)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := h.deps.Users.EnsureUser(c.Request.Context(), u); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("ensure user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
			return
		}
		user = u
	}

	s := sessions.Default(c)
	s.Set(sessionUserKey, string(user.ID))
	if err := s.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session save failed"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *handlers) listUsers(c *gin.Context) {
	users, err := h.deps.Users.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *handlers) listRooms(c *gin.Context) {
	uid := domain.UserID(c.GetString("user_id"))
	rooms, err := h.deps.Rooms.RoomsOf(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *handlers) createRoom(c *gin.Context) {
	uid := domain.UserID(c.GetString("user_id"))
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	members := make([]domain.UserID, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, domain.UserID(m))
	}
	room, err := h.deps.Coord.CreateGroupRoom(c.Request.Context(), uid, req.Name, members)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *handlers) openDirect(c *gin.Context) {
	uid := domain.UserID(c.GetString("user_id"))
	var req struct {
		PeerID string `json:"peer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PeerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peer_id required"})
		return
	}
	room, err := h.deps.Coord.OpenDirect(c.Request.Context(), uid, domain.UserID(req.PeerID))
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *handlers) listMessages(c *gin.Context) {
	uid := domain.UserID(c.GetString("user_id"))
	roomID := domain.RoomID(c.Param("id"))

	member, err := h.deps.Rooms.IsMember(c.Request.Context(), roomID, uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}
	msgs, err := h.deps.Msgs.ListRoom(c.Request.Context(), roomID, 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// uploadAttachment stores a blob and returns its opaque storage id; the
// client references it from a later send-message command.
func (h *handlers) uploadAttachment(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, 16<<20))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}
	id := uuid.NewString()
	ct := c.GetHeader("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	if err := h.deps.Blobs.Put(c.Request.Context(), id, data, ct); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("store blob")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "blob store failure"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"storage_id": id})
}

func (h *handlers) getAttachment(c *gin.Context) {
	data, ct, err := h.deps.Blobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "blob store failure"})
		return
	}
	c.Data(http.StatusOK, ct, data)
}

// respondAppError maps the coordinator's error taxonomy to HTTP status
// codes.
func respondAppError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch app.KindOf(err) {
	case app.KindValidation:
		status = http.StatusBadRequest
	case app.KindAuthorization:
		status = http.StatusForbidden
	case app.KindNotFound:
		status = http.StatusNotFound
	case app.KindPersistence:
		status = http.StatusInternalServerError
	}
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
