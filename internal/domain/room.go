package domain

import "github.com/google/uuid"

const MaxRoomNameLen = 64

type RoomID string

// Room groups a fixed member set for message exchange. A non-group room
// holds exactly two members and there is at most one such room per
// unordered member pair (enforced by the store on lookup-or-create).
type Room struct {
	ID      RoomID   `json:"id"`
	Name    string   `json:"name,omitempty"`
	IsGroup bool     `json:"is_group"`
	Members []UserID `json:"members"`
}

func NewGroupRoom(name string, members []UserID) *Room {
	return &Room{ID: RoomID(uuid.NewString()), Name: name, IsGroup: true, Members: members}
}

func NewDirectRoom(a, b UserID) *Room {
	return &Room{ID: RoomID(uuid.NewString()), IsGroup: false, Members: []UserID{a, b}}
}

// HasMember reports whether uid belongs to the room's member set.
func (r *Room) HasMember(uid UserID) bool {
	for _, m := range r.Members {
		if m == uid {
			return true
		}
	}
	return false
}

// Peer returns the other member of a 1:1 room.
func (r *Room) Peer(uid UserID) (UserID, bool) {
	if r.IsGroup {
		return "", false
	}
	for _, m := range r.Members {
		if m != uid {
			return m, true
		}
	}
	return "", false
}
