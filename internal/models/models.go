package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Interest is one of the enumerated tags a user can pick on their profile.
type Interest string

const (
	InterestMusic  Interest = "music"
	InterestSports Interest = "sports"
	InterestDance  Interest = "dance"
	InterestEGames Interest = "E-games"
)

// Valid reports whether i is one of the known interest tags.
func (i Interest) Valid() bool {
	switch i {
	case InterestMusic, InterestSports, InterestDance, InterestEGames:
		return true
	}
	return false
}

// Role of a user on campus. Read-only for this service.
type Role string

const (
	RoleStudent     Role = "student"
	RoleStaff       Role = "staff"
	RoleEventPoster Role = "event_poster"
)

// User is a campus profile. The profile store owns every field; this service
// only ever writes ConnectedPeers, and only through an accepted request.
//
// ConnectedPeers is symmetric: A is in B.ConnectedPeers exactly when B is in
// A.ConnectedPeers. In Postgres it is the user_connections table, two rows
// per edge.
type User struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Department     string      `json:"department"`
	Location       string      `json:"location"`
	Role           Role        `json:"role"`
	Interests      []Interest  `json:"interests"`
	ConnectedPeers []uuid.UUID `json:"connected_peers"`
	CreatedAt      time.Time   `json:"created_at"`
}

// IsConnectedTo reports whether peer is in u's connected set.
func (u *User) IsConnectedTo(peer uuid.UUID) bool {
	return slices.Contains(u.ConnectedPeers, peer)
}

// UserSummary is the slice of a profile shown next to requests and chats.
type UserSummary struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Role       Role      `json:"role,omitempty"`
}

// Summary projects u down to a UserSummary.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:         u.ID,
		Name:       u.Name,
		Department: u.Department,
		Role:       u.Role,
	}
}

// RequestStatus is the lifecycle state of a ConnectionRequest.
// pending moves once to accepted or rejected and never back.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// ConnectionRequest is a directed invitation from Sender to Receiver.
//
// At most one pending request exists per ordered (Sender, Receiver) pair.
// Rejected and accepted rows are kept as history.
type ConnectionRequest struct {
	ID         uuid.UUID     `json:"id"`
	SenderID   uuid.UUID     `json:"sender_id"`
	ReceiverID uuid.UUID     `json:"receiver_id"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// PendingRequest is an incoming request joined with who sent it.
type PendingRequest struct {
	ConnectionRequest
	Sender UserSummary `json:"sender"`
}

// Message is one entry in a chat. Messages are never edited after append.
//
// ID is a bigserial, so within a chat a higher ID is a later message.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is the single one-to-one conversation between two users.
//
// Participants is stored order-normalized (lower uuid first), which is what
// the (user_low, user_high) unique constraint keys on.
type Chat struct {
	ID           uuid.UUID    `json:"id"`
	Participants [2]uuid.UUID `json:"participants"`
	Messages     []Message    `json:"messages"`
	LastUpdated  time.Time    `json:"last_updated"`
	CreatedAt    time.Time    `json:"created_at"`
}

// HasParticipant reports whether id is one of the two chat members.
func (c *Chat) HasParticipant(id uuid.UUID) bool {
	return c.Participants[0] == id || c.Participants[1] == id
}

// Counterpart returns the participant that is not id. The second return
// value is false when id is not in the chat.
func (c *Chat) Counterpart(id uuid.UUID) (uuid.UUID, bool) {
	switch id {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	}
	return uuid.Nil, false
}

// NormalizePair orders two user ids the way chats are keyed.
func NormalizePair(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() > b.String() {
		return [2]uuid.UUID{b, a}
	}
	return [2]uuid.UUID{a, b}
}

// ChatView is a chat as seen by one caller. OtherUser depends on who is
// asking, so it is built per request and never persisted.
type ChatView struct {
	Chat
	OtherUser UserSummary `json:"other_user"`
}
