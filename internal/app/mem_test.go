package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
	"github.com/dkmln/parley/internal/store"
)

// fakeConn captures frames for assertions and can simulate a full send
// buffer.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	if c.full {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// memStore is an in-memory implementation of all three store
// interfaces, good enough to exercise the coordinator without SQLite.
type memStore struct {
	mu         sync.Mutex
	users      map[domain.UserID]domain.User
	rooms      map[domain.RoomID]*domain.Room
	direct     map[string]domain.RoomID
	msgs       map[domain.MessageID]*domain.Message
	failCreate bool
}

var (
	_ store.MessageStore = (*memStore)(nil)
	_ store.RoomStore    = (*memStore)(nil)
	_ store.UserStore    = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[domain.UserID]domain.User),
		rooms:  make(map[domain.RoomID]*domain.Room),
		direct: make(map[string]domain.RoomID),
		msgs:   make(map[domain.MessageID]*domain.Message),
	}
}

func (s *memStore) addUser(id domain.UserID, name string) {
	s.mu.Lock()
	s.users[id] = domain.User{ID: id, Username: name}
	s.mu.Unlock()
}

func (s *memStore) addRoom(r *domain.Room) {
	s.mu.Lock()
	s.rooms[r.ID] = r
	s.mu.Unlock()
}

func (s *memStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *memStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *memStore) EnsureUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	s.users[u.ID] = *u
	s.mu.Unlock()
	return nil
}

func (s *memStore) CreateRoom(ctx context.Context, r *domain.Room) error {
	s.mu.Lock()
	s.rooms[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *memStore) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) GetOrCreateDirect(ctx context.Context, a, b domain.UserID) (*domain.Room, error) {
	key := string(a) + "|" + string(b)
	if b < a {
		key = string(b) + "|" + string(a)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.direct[key]; ok {
		cp := *s.rooms[id]
		return &cp, nil
	}
	r := domain.NewDirectRoom(a, b)
	s.rooms[r.ID] = r
	s.direct[key] = r.ID
	cp := *r
	return &cp, nil
}

func (s *memStore) RoomsOf(ctx context.Context, uid domain.UserID) ([]domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Room
	for _, r := range s.rooms {
		if r.HasMember(uid) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) IsMember(ctx context.Context, roomID domain.RoomID, uid domain.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return false, nil
	}
	return r.HasMember(uid), nil
}

func (s *memStore) CreateMessage(ctx context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errors.New("store unavailable")
	}
	cp := *m
	s.msgs[m.ID] = &cp
	return nil
}

func (s *memStore) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok || m.Deleted {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) UpdateContent(ctx context.Context, id domain.MessageID, content string, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok || m.Deleted {
		return store.ErrNotFound
	}
	m.Content = content
	m.EditedAt = &editedAt
	return nil
}

func (s *memStore) DeleteMessage(ctx context.Context, id domain.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok || m.Deleted {
		return store.ErrNotFound
	}
	m.Deleted = true
	return nil
}

func (s *memStore) AddReceipt(ctx context.Context, id domain.MessageID, uid domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok || m.Deleted {
		return store.ErrNotFound
	}
	if !m.IsReadBy(uid) {
		m.ReadBy = append(m.ReadBy, uid)
	}
	return nil
}

func (s *memStore) SetFavorite(ctx context.Context, id domain.MessageID, uid domain.UserID, want bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok || m.Deleted {
		return store.ErrNotFound
	}
	if want {
		if !m.IsFavoritedBy(uid) {
			m.FavoritedBy = append(m.FavoritedBy, uid)
		}
		return nil
	}
	out := m.FavoritedBy[:0]
	for _, u := range m.FavoritedBy {
		if u != uid {
			out = append(out, u)
		}
	}
	m.FavoritedBy = out
	return nil
}

func (s *memStore) ListRoom(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.msgs {
		if m.RoomID == roomID && !m.Deleted {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CountUnread(ctx context.Context, roomID domain.RoomID, uid domain.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.RoomID == roomID && !m.Deleted && m.SenderID != uid && !m.IsReadBy(uid) {
			n++
		}
	}
	return n, nil
}

// fakeBlobs records deletions for the delete-releases-blobs test.
type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
	fail    bool
}

func (b *fakeBlobs) Put(ctx context.Context, id string, data []byte, contentType string) error {
	return nil
}

func (b *fakeBlobs) Get(ctx context.Context, id string) ([]byte, string, error) {
	return nil, "", errors.New("not implemented")
}

func (b *fakeBlobs) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("blob store down")
	}
	b.deleted = append(b.deleted, id)
	return nil
}
