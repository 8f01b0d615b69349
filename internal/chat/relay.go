// Package chat implements one-to-one chats: finding or creating the chat
// for a pair, appending messages, and notifying the other participant.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/apperr"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/realtime"
	"github.com/lalith-99/campusconnect/internal/repository"
	"go.uber.org/zap"
)

const (
	MaxContentLength      = 4000
	DefaultPublishTimeout = 5 * time.Second
)

type Relay struct {
	chats          repository.ChatRepository
	users          repository.UserRepository
	publisher      realtime.Publisher
	logger         *zap.Logger
	publishTimeout time.Duration

	inflight sync.WaitGroup
}

type Option func(*Relay)

// WithPublishTimeout bounds each notification attempt.
func WithPublishTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.publishTimeout = d
		}
	}
}

func NewRelay(chats repository.ChatRepository, users repository.UserRepository, publisher realtime.Publisher, logger *zap.Logger, opts ...Option) *Relay {
	r := &Relay{
		chats:          chats,
		users:          users,
		publisher:      publisher,
		logger:         logger.Named("chat"),
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AccessChat returns the chat between callerID and otherID, creating it on
// first access. Every caller, in either order and concurrently, gets the
// same chat.
func (r *Relay) AccessChat(ctx context.Context, callerID, otherID uuid.UUID) (*models.ChatView, error) {
	if callerID == uuid.Nil || otherID == uuid.Nil {
		return nil, apperr.Validation("user id is required")
	}
	if callerID == otherID {
		return nil, apperr.Validation("cannot open a chat with yourself")
	}

	other, err := r.users.GetByID(ctx, otherID)
	if err != nil {
		return nil, storeErr(err, "user")
	}

	chat, err := r.chats.FindOrCreate(ctx, callerID, otherID)
	if err != nil {
		return nil, storeErr(err, "user")
	}

	return &models.ChatView{Chat: *chat, OtherUser: other.Summary()}, nil
}

// ListChats returns the caller's chats, most recently active first.
func (r *Relay) ListChats(ctx context.Context, callerID uuid.UUID) ([]models.ChatView, error) {
	chats, err := r.chats.ListByUser(ctx, callerID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if len(chats) == 0 {
		return make([]models.ChatView, 0), nil
	}

	others := make([]uuid.UUID, 0, len(chats))
	for i := range chats {
		if id, ok := chats[i].Counterpart(callerID); ok {
			others = append(others, id)
		}
	}
	users, err := r.users.ListByIDs(ctx, others)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	summaries := make(map[uuid.UUID]models.UserSummary, len(users))
	for i := range users {
		summaries[users[i].ID] = users[i].Summary()
	}

	views := make([]models.ChatView, 0, len(chats))
	for _, c := range chats {
		otherID, _ := c.Counterpart(callerID)
		summary, ok := summaries[otherID]
		if !ok {
			summary = models.UserSummary{ID: otherID}
		}
		views = append(views, models.ChatView{Chat: c, OtherUser: summary})
	}
	return views, nil
}

// SendMessage appends content to the chat as senderID and, once the append
// is committed, notifies the other participant in the background.
func (r *Relay) SendMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*models.ChatView, error) {
	if chatID == uuid.Nil || senderID == uuid.Nil {
		return nil, apperr.Validation("chat id and sender are required")
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	chat, err := r.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, storeErr(err, "chat")
	}
	recipientID, ok := chat.Counterpart(senderID)
	if !ok {
		return nil, apperr.Forbidden("not a participant in this chat")
	}

	msg, updated, err := r.chats.AppendMessage(ctx, chatID, senderID, content)
	if err != nil {
		return nil, storeErr(err, "chat")
	}

	r.notify(realtime.Event{
		Type:         realtime.EventMessageDelivered,
		ChatID:       updated.ID,
		Participants: updated.Participants,
		RecipientID:  recipientID,
		Message:      *msg,
	})

	view := &models.ChatView{Chat: *updated, OtherUser: models.UserSummary{ID: recipientID}}
	if other, err := r.users.GetByID(ctx, recipientID); err == nil {
		view.OtherUser = other.Summary()
	} else {
		// The message is already committed; a failed profile lookup only
		// degrades the response.
		r.logger.Warn("load recipient profile", zap.String("user_id", recipientID.String()), zap.Error(err))
	}
	return view, nil
}

// Wait blocks until every notification started so far has finished.
func (r *Relay) Wait() {
	r.inflight.Wait()
}

// notify publishes on a context detached from the request, bounded by
// publishTimeout. Failures are logged and dropped.
func (r *Relay) notify(event realtime.Event) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
		defer cancel()

		if err := r.publisher.Publish(ctx, event.RecipientID, event); err != nil {
			r.logger.Warn("publish message event",
				zap.String("chat_id", event.ChatID.String()),
				zap.String("recipient_id", event.RecipientID.String()),
				zap.Int64("message_id", event.Message.ID),
				zap.Error(err),
			)
		}
	}()
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperr.Validation("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return apperr.Validation("message content is too long")
	}
	return nil
}

func storeErr(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(what)
	case apperr.KindOf(err) != apperr.KindInternal:
		return err
	}
	return apperr.Internal("chat store failure", err)
}
