package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/models"
)

// Every method takes ctx first: all of these touch the network in the
// Postgres implementation, and a cancelled request must cancel its query.
//
// Not-found is signalled with ErrNotFound rather than nil, nil so that the
// services can translate it in one place (errors.Is).

var (
	// ErrNotFound means the addressed row does not exist.
	ErrNotFound = errors.New("repository: not found")

	// ErrDuplicatePending is returned by CreatePending when the
	// (sender, receiver, pending) uniqueness guard rejects the insert.
	ErrDuplicatePending = errors.New("repository: pending request already exists")

	// ErrAlreadyConnected is returned by CreatePending when the two users are
	// connected at the moment of the insert.
	ErrAlreadyConnected = errors.New("repository: users already connected")

	// ErrNotPending is returned by Accept/Reject when the request exists but
	// already left the pending state (possibly a concurrent transition).
	ErrNotPending = errors.New("repository: request is not pending")
)

// UserRepository is the read side of the profile store.
type UserRepository interface {
	// GetByID returns the user with ConnectedPeers populated.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// ListByIDs returns the users among ids that exist, in no particular order.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)

	// ListConnections returns the profiles of every peer connected to userID.
	ListConnections(ctx context.Context, userID uuid.UUID) ([]models.User, error)
}

// RequestRepository owns connection requests and, through Accept, the
// symmetric connection edge.
type RequestRepository interface {
	// CreatePending inserts a pending request. The insert itself is the
	// duplicate guard: a second pending row for the same ordered pair fails
	// with ErrDuplicatePending, including under concurrent calls. The insert
	// is skipped with ErrAlreadyConnected if the edge exists, and fails with
	// ErrNotFound if either user does not exist.
	CreatePending(ctx context.Context, senderID, receiverID uuid.UUID) (*models.ConnectionRequest, error)

	GetByID(ctx context.Context, requestID uuid.UUID) (*models.ConnectionRequest, error)

	// Accept flips a pending request to accepted and inserts both directions
	// of the edge as one atomic unit. Returns ErrNotPending if the request is
	// no longer pending when the write happens.
	Accept(ctx context.Context, requestID uuid.UUID) (*models.ConnectionRequest, error)

	// Reject flips a pending request to rejected. No edge is touched.
	Reject(ctx context.Context, requestID uuid.UUID) (*models.ConnectionRequest, error)

	// ListPendingIncoming returns pending requests addressed to userID with the
	// sender's summary attached, newest first.
	ListPendingIncoming(ctx context.Context, userID uuid.UUID) ([]models.PendingRequest, error)

	// ListPendingOutgoing returns pending requests sent by userID, newest first.
	ListPendingOutgoing(ctx context.Context, userID uuid.UUID) ([]models.ConnectionRequest, error)
}

// GraphSnapshot is a consistent read of everything the recommender needs.
// All three fields come from the same point in time.
type GraphSnapshot struct {
	User              models.User
	Users             []models.User
	OutgoingPendingTo []uuid.UUID
}

// SnapshotReader produces GraphSnapshots.
type SnapshotReader interface {
	// Snapshot returns ErrNotFound if userID does not exist.
	Snapshot(ctx context.Context, userID uuid.UUID) (*GraphSnapshot, error)
}

// ChatRepository persists one-to-one chats and their messages.
type ChatRepository interface {
	// FindOrCreate returns the chat for the unordered pair {a, b}, creating it
	// if needed. Concurrent calls for the same pair return the same chat.
	FindOrCreate(ctx context.Context, a, b uuid.UUID) (*models.Chat, error)

	// GetByID returns the chat with its messages in append order.
	GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)

	// ListByUser returns every chat userID takes part in, most recently
	// updated first, with messages.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)

	// AppendMessage appends a message and advances LastUpdated in one write.
	// The timestamp is assigned by the store and never goes backwards within
	// a chat. Returns the message and the updated chat.
	AppendMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*models.Message, *models.Chat, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}
