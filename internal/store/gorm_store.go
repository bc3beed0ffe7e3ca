package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkmln/parley/internal/domain"
)

// GormStore implements MessageStore, RoomStore and UserStore on a single
// GORM handle (SQLite in the default wiring).
type GormStore struct {
	db *gorm.DB
}

// Compile-time interface checks.
var (
	_ MessageStore = (*GormStore)(nil)
	_ RoomStore    = (*GormStore)(nil)
	_ UserStore    = (*GormStore)(nil)
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// --- UserStore ---

func (s *GormStore) EnsureUser(ctx context.Context, u *domain.User) error {
	rec := userRecord{ID: string(u.ID), Username: u.Username, AvatarURL: u.AvatarURL}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "avatar_url"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (s *GormStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u := toUser(rec)
	return &u, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var recs []userRecord
	if err := s.db.WithContext(ctx).Order("username").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.User, 0, len(recs))
	for _, r := range recs {
		out = append(out, toUser(r))
	}
	return out, nil
}

func toUser(r userRecord) domain.User {
	return domain.User{ID: domain.UserID(r.ID), Username: r.Username, AvatarURL: r.AvatarURL}
}

// --- RoomStore ---

func (s *GormStore) CreateRoom(ctx context.Context, r *domain.Room) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := roomRecord{ID: string(r.ID), Name: r.Name, IsGroup: r.IsGroup, CreatedAt: time.Now().UTC()}
		if !r.IsGroup {
			if len(r.Members) != 2 {
				return fmt.Errorf("direct room needs exactly two members, got %d", len(r.Members))
			}
			pk := pairKey(r.Members[0], r.Members[1])
			rec.PairKey = &pk
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		for _, uid := range r.Members {
			m := roomMemberRecord{RoomID: string(r.ID), UserID: string(uid)}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return fmt.Errorf("create room member: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var rec roomRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	members, err := s.membersOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.Room{ID: id, Name: rec.Name, IsGroup: rec.IsGroup, Members: members}, nil
}

func (s *GormStore) GetOrCreateDirect(ctx context.Context, a, b domain.UserID) (*domain.Room, error) {
	pk := pairKey(a, b)
	var rec roomRecord
	err := s.db.WithContext(ctx).First(&rec, "pair_key = ?", pk).Error
	if err == nil {
		return s.GetRoom(ctx, domain.RoomID(rec.ID))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup direct room: %w", err)
	}
	room := domain.NewDirectRoom(a, b)
	if err := s.CreateRoom(ctx, room); err != nil {
		// A concurrent creator can win the unique pair_key index; fall
		// back to the lookup.
		if lookupErr := s.db.WithContext(ctx).First(&rec, "pair_key = ?", pk).Error; lookupErr == nil {
			return s.GetRoom(ctx, domain.RoomID(rec.ID))
		}
		return nil, err
	}
	return room, nil
}

func (s *GormStore) RoomsOf(ctx context.Context, uid domain.UserID) ([]domain.Room, error) {
	var recs []roomRecord
	err := s.db.WithContext(ctx).
		Joins("JOIN room_members rm ON rm.room_id = rooms.id").
		Where("rm.user_id = ?", string(uid)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("rooms of user: %w", err)
	}
	out := make([]domain.Room, 0, len(recs))
	for _, r := range recs {
		members, err := s.membersOf(ctx, domain.RoomID(r.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Room{ID: domain.RoomID(r.ID), Name: r.Name, IsGroup: r.IsGroup, Members: members})
	}
	return out, nil
}

func (s *GormStore) IsMember(ctx context.Context, roomID domain.RoomID, uid domain.UserID) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&roomMemberRecord{}).
		Where("room_id = ? AND user_id = ?", string(roomID), string(uid)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return n > 0, nil
}

func (s *GormStore) membersOf(ctx context.Context, roomID domain.RoomID) ([]domain.UserID, error) {
	var recs []roomMemberRecord
	if err := s.db.WithContext(ctx).Where("room_id = ?", string(roomID)).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("members of room: %w", err)
	}
	out := make([]domain.UserID, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.UserID(r.UserID))
	}
	return out, nil
}

// pairKey canonicalizes an unordered user pair.
func pairKey(a, b domain.UserID) string {
	if b < a {
		a, b = b, a
	}
	return string(a) + "|" + string(b)
}

// --- MessageStore ---

func (s *GormStore) CreateMessage(ctx context.Context, m *domain.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := messageRecord{
			ID:        string(m.ID),
			RoomID:    string(m.RoomID),
			SenderID:  string(m.SenderID),
			Content:   m.Content,
			Forwarded: m.Forwarded,
			CreatedAt: m.CreatedAt,
		}
		if m.ReplyToID != nil {
			v := string(*m.ReplyToID)
			rec.ReplyToID = &v
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		for i, a := range m.Attachments {
			ar := attachmentRecord{
				MessageID:    string(m.ID),
				Position:     i,
				URL:          a.URL,
				Filename:     a.Filename,
				MimeCategory: a.MimeCategory,
				StorageID:    a.StorageID,
			}
			if err := tx.Create(&ar).Error; err != nil {
				return fmt.Errorf("create attachment: %w", err)
			}
		}
		for _, uid := range m.ReadBy {
			rr := receiptRecord{MessageID: string(m.ID), UserID: string(uid), ReadAt: m.CreatedAt}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rr).Error; err != nil {
				return fmt.Errorf("create receipt: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var rec messageRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ? AND deleted = ?", string(id), false).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return s.assemble(ctx, rec)
}

func (s *GormStore) UpdateContent(ctx context.Context, id domain.MessageID, content string, editedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&messageRecord{}).
		Where("id = ? AND deleted = ?", string(id), false).
		Updates(map[string]any{"content": content, "edited_at": editedAt})
	if res.Error != nil {
		return fmt.Errorf("update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteMessage(ctx context.Context, id domain.MessageID) error {
	res := s.db.WithContext(ctx).Model(&messageRecord{}).
		Where("id = ? AND deleted = ?", string(id), false).
		Update("deleted", true)
	if res.Error != nil {
		return fmt.Errorf("delete message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AddReceipt(ctx context.Context, id domain.MessageID, uid domain.UserID) error {
	rr := receiptRecord{MessageID: string(id), UserID: string(uid), ReadAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rr).Error
	if err != nil {
		return fmt.Errorf("add receipt: %w", err)
	}
	return nil
}

func (s *GormStore) SetFavorite(ctx context.Context, id domain.MessageID, uid domain.UserID, want bool) error {
	if want {
		fr := favoriteRecord{MessageID: string(id), UserID: string(uid)}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fr).Error
		if err != nil {
			return fmt.Errorf("set favorite: %w", err)
		}
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", string(id), string(uid)).
		Delete(&favoriteRecord{}).Error
	if err != nil {
		return fmt.Errorf("unset favorite: %w", err)
	}
	return nil
}

func (s *GormStore) ListRoom(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	q := s.db.WithContext(ctx).
		Where("room_id = ? AND deleted = ?", string(roomID), false).
		Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []messageRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list room messages: %w", err)
	}
	out := make([]domain.Message, 0, len(recs))
	for _, rec := range recs {
		m, err := s.assemble(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *GormStore) CountUnread(ctx context.Context, roomID domain.RoomID, uid domain.UserID) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&messageRecord{}).
		Where("room_id = ? AND sender_id <> ? AND deleted = ?", string(roomID), string(uid), false).
		Where("NOT EXISTS (SELECT 1 FROM message_receipts r WHERE r.message_id = messages.id AND r.user_id = ?)", string(uid)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return int(n), nil
}

func (s *GormStore) assemble(ctx context.Context, rec messageRecord) (*domain.Message, error) {
	m := domain.Message{
		ID:          domain.MessageID(rec.ID),
		RoomID:      domain.RoomID(rec.RoomID),
		SenderID:    domain.UserID(rec.SenderID),
		Content:     rec.Content,
		Attachments: []domain.Attachment{},
		CreatedAt:   rec.CreatedAt,
		EditedAt:    rec.EditedAt,
		ReadBy:      []domain.UserID{},
		FavoritedBy: []domain.UserID{},
		Forwarded:   rec.Forwarded,
		Deleted:     rec.Deleted,
	}
	if rec.ReplyToID != nil {
		v := domain.MessageID(*rec.ReplyToID)
		m.ReplyToID = &v
	}

	var atts []attachmentRecord
	if err := s.db.WithContext(ctx).Where("message_id = ?", rec.ID).Order("position").Find(&atts).Error; err != nil {
		return nil, fmt.Errorf("load attachments: %w", err)
	}
	for _, a := range atts {
		m.Attachments = append(m.Attachments, domain.Attachment{
			URL: a.URL, Filename: a.Filename, MimeCategory: a.MimeCategory, StorageID: a.StorageID,
		})
	}

	var receipts []receiptRecord
	if err := s.db.WithContext(ctx).Where("message_id = ?", rec.ID).Order("read_at").Find(&receipts).Error; err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	for _, r := range receipts {
		m.ReadBy = append(m.ReadBy, domain.UserID(r.UserID))
	}

	var favs []favoriteRecord
	if err := s.db.WithContext(ctx).Where("message_id = ?", rec.ID).Find(&favs).Error; err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	for _, f := range favs {
		m.FavoritedBy = append(m.FavoritedBy, domain.UserID(f.UserID))
	}
	return &m, nil
}
