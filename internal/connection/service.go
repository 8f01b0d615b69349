// Package connection manages connection requests and the symmetric
// "connected" edge between users.
package connection

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/apperr"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/repository"
	"go.uber.org/zap"
)

type Service struct {
	users    repository.UserRepository
	requests repository.RequestRepository
	logger   *zap.Logger
}

func NewService(users repository.UserRepository, requests repository.RequestRepository, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		requests: requests,
		logger:   logger.Named("connection"),
	}
}

// SendRequest creates a pending request from sender to receiver.
//
// The AlreadyConnected pre-check gives the common case a clear error; the
// store repeats both the connected check and the duplicate check inside the
// insert, so concurrent identical calls still yield one pending row.
func (s *Service) SendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.ConnectionRequest, error) {
	if senderID == uuid.Nil || receiverID == uuid.Nil {
		return nil, apperr.Validation("sender and receiver are required")
	}
	if senderID == receiverID {
		return nil, apperr.SelfRequest()
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, s.storeErr(err, "user")
	}
	if sender.IsConnectedTo(receiverID) {
		return nil, apperr.AlreadyConnected()
	}

	req, err := s.requests.CreatePending(ctx, senderID, receiverID)
	if err != nil {
		return nil, s.storeErr(err, "user")
	}

	s.logger.Info("connection request sent",
		zap.String("request_id", req.ID.String()),
		zap.String("sender_id", senderID.String()),
		zap.String("receiver_id", receiverID.String()),
	)
	return req, nil
}

// AcceptRequest accepts a pending request addressed to callerID and connects
// both users in the same atomic unit.
func (s *Service) AcceptRequest(ctx context.Context, requestID, callerID uuid.UUID) (*models.ConnectionRequest, error) {
	if err := s.authorize(ctx, requestID, callerID); err != nil {
		return nil, err
	}

	req, err := s.requests.Accept(ctx, requestID)
	if err != nil {
		return nil, s.storeErr(err, "request")
	}

	s.logger.Info("connection request accepted",
		zap.String("request_id", req.ID.String()),
		zap.String("sender_id", req.SenderID.String()),
		zap.String("receiver_id", req.ReceiverID.String()),
	)
	return req, nil
}

// RejectRequest rejects a pending request addressed to callerID. The row is
// kept as history and does not block a later request from the same sender.
func (s *Service) RejectRequest(ctx context.Context, requestID, callerID uuid.UUID) (*models.ConnectionRequest, error) {
	if err := s.authorize(ctx, requestID, callerID); err != nil {
		return nil, err
	}

	req, err := s.requests.Reject(ctx, requestID)
	if err != nil {
		return nil, s.storeErr(err, "request")
	}

	s.logger.Info("connection request rejected",
		zap.String("request_id", req.ID.String()),
		zap.String("receiver_id", req.ReceiverID.String()),
	)
	return req, nil
}

// authorize loads the request and checks that callerID may resolve it.
// The pending check here is advisory; the store's conditional update is what
// decides a race between two resolutions.
func (s *Service) authorize(ctx context.Context, requestID, callerID uuid.UUID) error {
	if requestID == uuid.Nil || callerID == uuid.Nil {
		return apperr.Validation("request id and caller are required")
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return s.storeErr(err, "request")
	}
	if req.ReceiverID != callerID {
		return apperr.Forbidden("only the receiver can respond to this request")
	}
	if req.Status != models.RequestPending {
		return apperr.AlreadyHandled()
	}
	return nil
}

func (s *Service) ListConnections(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	users, err := s.users.ListConnections(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err, "user")
	}
	return users, nil
}

func (s *Service) ListPendingIncoming(ctx context.Context, userID uuid.UUID) ([]models.PendingRequest, error) {
	reqs, err := s.requests.ListPendingIncoming(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err, "user")
	}
	return reqs, nil
}

func (s *Service) ListPendingOutgoing(ctx context.Context, userID uuid.UUID) ([]models.ConnectionRequest, error) {
	reqs, err := s.requests.ListPendingOutgoing(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err, "user")
	}
	return reqs, nil
}

// storeErr translates repository sentinels into the error taxonomy. what
// names the entity a not-found refers to.
func (s *Service) storeErr(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(what)
	case errors.Is(err, repository.ErrDuplicatePending):
		return apperr.DuplicatePending()
	case errors.Is(err, repository.ErrAlreadyConnected):
		return apperr.AlreadyConnected()
	case errors.Is(err, repository.ErrNotPending):
		return apperr.AlreadyHandled()
	case apperr.KindOf(err) != apperr.KindInternal:
		return err
	}
	return apperr.Internal("connection store failure", err)
}
