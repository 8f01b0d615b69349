// Package memory is an in-process Entity Store. It upholds the same
// invariants as the Postgres store (one pending request per ordered pair,
// one chat per unordered pair, atomic accept) using a single mutex as its
// transaction boundary. Used by tests and by STORE_DRIVER=memory.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/repository"
)

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[uuid.UUID]*models.User
	requests map[uuid.UUID]*models.ConnectionRequest
	chats    map[uuid.UUID]*models.Chat
	pairs    map[[2]uuid.UUID]uuid.UUID
	nextMsg  int64
}

// UserRepo, RequestRepo and ChatRepo are views over one Store. They exist
// because the repository interfaces reuse method names (GetByID) with
// different result types.
type (
	UserRepo    struct{ *Store }
	RequestRepo struct{ *Store }
	ChatRepo    struct{ *Store }
)

var (
	_ repository.UserRepository    = UserRepo{}
	_ repository.RequestRepository = RequestRepo{}
	_ repository.ChatRepository    = ChatRepo{}
	_ repository.SnapshotReader    = (*Store)(nil)
	_ repository.Pinger            = (*Store)(nil)
)

type Option func(*Store)

// WithClock overrides time.Now; tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		users:    make(map[uuid.UUID]*models.User),
		requests: make(map[uuid.UUID]*models.ConnectionRequest),
		chats:    make(map[uuid.UUID]*models.Chat),
		pairs:    make(map[[2]uuid.UUID]uuid.UUID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutUser inserts or replaces a profile. It stands in for the profile
// service; ConnectedPeers on u is ignored in favour of the stored edges
// when u already exists.
func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	if existing, ok := s.users[u.ID]; ok {
		u.ConnectedPeers = existing.ConnectedPeers
	}
	u.ConnectedPeers = slices.Clone(u.ConnectedPeers)
	u.Interests = slices.Clone(u.Interests)
	s.users[u.ID] = &u
}

func (s *Store) Users() UserRepo       { return UserRepo{s} }
func (s *Store) Requests() RequestRepo { return RequestRepo{s} }
func (s *Store) Chats() ChatRepo       { return ChatRepo{s} }

func (s *Store) Ping(context.Context) error {
	return nil
}

// ---------------------------------------------------------------
// Users
// ---------------------------------------------------------------

func (s UserRepo) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (s UserRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (s UserRepo) ListConnections(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.User, 0)
	u, ok := s.users[userID]
	if !ok {
		return out, nil
	}
	for _, id := range u.ConnectedPeers {
		if peer, ok := s.users[id]; ok {
			out = append(out, cloneUser(peer))
		}
	}
	slices.SortFunc(out, func(a, b models.User) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

// ---------------------------------------------------------------
// Connection requests
// ---------------------------------------------------------------

func (s RequestRepo) CreatePending(ctx context.Context, senderID, receiverID uuid.UUID) (*models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.users[senderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if _, ok := s.users[receiverID]; !ok {
		return nil, repository.ErrNotFound
	}
	if sender.IsConnectedTo(receiverID) {
		return nil, repository.ErrAlreadyConnected
	}
	for _, r := range s.requests {
		if r.SenderID == senderID && r.ReceiverID == receiverID && r.Status == models.RequestPending {
			return nil, repository.ErrDuplicatePending
		}
	}

	now := s.now()
	req := &models.ConnectionRequest{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.RequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.requests[req.ID] = req
	c := *req
	return &c, nil
}

func (s *Store) getRequest(requestID uuid.UUID) (*models.ConnectionRequest, error) {
	r, ok := s.requests[requestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

func (s RequestRepo) GetByID(ctx context.Context, requestID uuid.UUID) (*models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRequest(requestID)
	if err != nil {
		return nil, err
	}
	c := *r
	return &c, nil
}

func (s RequestRepo) Accept(ctx context.Context, requestID uuid.UUID) (*models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRequest(requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RequestPending {
		return nil, repository.ErrNotPending
	}
	sender, okS := s.users[r.SenderID]
	receiver, okR := s.users[r.ReceiverID]
	if !okS || !okR {
		return nil, repository.ErrNotFound
	}

	r.Status = models.RequestAccepted
	r.UpdatedAt = s.now()
	if !sender.IsConnectedTo(receiver.ID) {
		sender.ConnectedPeers = append(sender.ConnectedPeers, receiver.ID)
	}
	if !receiver.IsConnectedTo(sender.ID) {
		receiver.ConnectedPeers = append(receiver.ConnectedPeers, sender.ID)
	}
	c := *r
	return &c, nil
}

func (s RequestRepo) Reject(ctx context.Context, requestID uuid.UUID) (*models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRequest(requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RequestPending {
		return nil, repository.ErrNotPending
	}
	r.Status = models.RequestRejected
	r.UpdatedAt = s.now()
	c := *r
	return &c, nil
}

func (s RequestRepo) ListPendingIncoming(ctx context.Context, userID uuid.UUID) ([]models.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.PendingRequest, 0)
	for _, r := range s.requests {
		if r.ReceiverID != userID || r.Status != models.RequestPending {
			continue
		}
		p := models.PendingRequest{ConnectionRequest: *r}
		if sender, ok := s.users[r.SenderID]; ok {
			p.Sender = sender.Summary()
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b models.PendingRequest) int {
		return newestFirst(a.ConnectionRequest, b.ConnectionRequest)
	})
	return out, nil
}

func (s RequestRepo) ListPendingOutgoing(ctx context.Context, userID uuid.UUID) ([]models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ConnectionRequest, 0)
	for _, r := range s.requests {
		if r.SenderID == userID && r.Status == models.RequestPending {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, newestFirst)
	return out, nil
}

// CountPending returns how many pending rows exist for the ordered pair.
func (s *Store) CountPending(senderID, receiverID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.requests {
		if r.SenderID == senderID && r.ReceiverID == receiverID && r.Status == models.RequestPending {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------

func (s *Store) Snapshot(ctx context.Context, userID uuid.UUID) (*repository.GraphSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	snap := &repository.GraphSnapshot{
		User:              cloneUser(u),
		Users:             make([]models.User, 0, len(s.users)),
		OutgoingPendingTo: make([]uuid.UUID, 0),
	}
	for _, other := range s.users {
		snap.Users = append(snap.Users, cloneUser(other))
	}
	for _, r := range s.requests {
		if r.SenderID == userID && r.Status == models.RequestPending {
			snap.OutgoingPendingTo = append(snap.OutgoingPendingTo, r.ReceiverID)
		}
	}
	return snap, nil
}

// ---------------------------------------------------------------
// Chats
// ---------------------------------------------------------------

func (s ChatRepo) FindOrCreate(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := models.NormalizePair(a, b)
	if id, ok := s.pairs[pair]; ok {
		c := cloneChat(s.chats[id])
		return &c, nil
	}
	if _, ok := s.users[a]; !ok {
		return nil, repository.ErrNotFound
	}
	if _, ok := s.users[b]; !ok {
		return nil, repository.ErrNotFound
	}

	now := s.now()
	chat := &models.Chat{
		ID:           uuid.New(),
		Participants: pair,
		Messages:     make([]models.Message, 0),
		LastUpdated:  now,
		CreatedAt:    now,
	}
	s.chats[chat.ID] = chat
	s.pairs[pair] = chat.ID
	c := cloneChat(chat)
	return &c, nil
}

func (s ChatRepo) GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneChat(chat)
	return &c, nil
}

func (s ChatRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Chat, 0)
	for _, chat := range s.chats {
		if chat.HasParticipant(userID) {
			out = append(out, cloneChat(chat))
		}
	}
	slices.SortFunc(out, func(a, b models.Chat) int {
		return cmp.Or(b.LastUpdated.Compare(a.LastUpdated), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

func (s ChatRepo) AppendMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*models.Message, *models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}

	ts := s.now()
	if ts.Before(chat.LastUpdated) {
		ts = chat.LastUpdated
	}
	s.nextMsg++
	msg := models.Message{
		ID:        s.nextMsg,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: ts,
	}
	chat.Messages = append(chat.Messages, msg)
	chat.LastUpdated = ts

	c := cloneChat(chat)
	return &msg, &c, nil
}

func newestFirst(a, b models.ConnectionRequest) int {
	return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
}

func cloneUser(u *models.User) models.User {
	c := *u
	c.Interests = slices.Clone(u.Interests)
	c.ConnectedPeers = slices.Clone(u.ConnectedPeers)
	if c.ConnectedPeers == nil {
		c.ConnectedPeers = make([]uuid.UUID, 0)
	}
	return c
}

func cloneChat(chat *models.Chat) models.Chat {
	c := *chat
	c.Messages = slices.Clone(chat.Messages)
	if c.Messages == nil {
		c.Messages = make([]models.Message, 0)
	}
	return c
}
