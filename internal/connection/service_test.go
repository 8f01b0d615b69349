package connection

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/apperr"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store *memory.Store
	svc   *Service
	alice uuid.UUID
	bob   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		store: store,
		svc:   NewService(store.Users(), store.Requests(), zap.NewNop()),
		alice: uuid.New(),
		bob:   uuid.New(),
	}
	store.PutUser(models.User{ID: f.alice, Name: "Alice", Department: "CSE"})
	store.PutUser(models.User{ID: f.bob, Name: "Bob", Department: "ECE"})
	return f
}

func (f *fixture) user(t *testing.T, id uuid.UUID) *models.User {
	t.Helper()
	u, err := f.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestSendRequest_CreatesPending(t *testing.T) {
	f := newFixture(t)

	req, err := f.svc.SendRequest(context.Background(), f.alice, f.bob)

	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, f.alice, req.SenderID)
	assert.Equal(t, f.bob, req.ReceiverID)
}

func TestSendRequest_Self(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendRequest(context.Background(), f.alice, f.alice)

	assert.Equal(t, apperr.KindSelfRequest, apperr.KindOf(err))
}

func TestSendRequest_MissingIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendRequest(context.Background(), f.alice, uuid.Nil)

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSendRequest_UnknownReceiver(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendRequest(context.Background(), f.alice, uuid.New())

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSendRequest_DuplicatePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)

	_, err = f.svc.SendRequest(ctx, f.alice, f.bob)

	assert.Equal(t, apperr.KindDuplicatePending, apperr.KindOf(err))
	assert.Equal(t, 1, f.store.CountPending(f.alice, f.bob))
}

func TestSendRequest_OppositeDirectionIsIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)
	_, err = f.svc.SendRequest(ctx, f.bob, f.alice)

	assert.NoError(t, err)
}

func TestSendRequest_ConcurrentDuplicatesYieldOnePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SendRequest(ctx, f.alice, f.bob)
			mu.Lock()
			defer mu.Unlock()
			switch apperr.KindOf(err) {
			case apperr.KindDuplicatePending:
				dupes++
			default:
				if err == nil {
					succeeded++
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, dupes)
	assert.Equal(t, 1, f.store.CountPending(f.alice, f.bob))
}

func TestAcceptRequest_ConnectsBothUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)

	accepted, err := f.svc.AcceptRequest(ctx, req.ID, f.bob)

	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, accepted.Status)
	assert.Contains(t, f.user(t, f.alice).ConnectedPeers, f.bob)
	assert.Contains(t, f.user(t, f.bob).ConnectedPeers, f.alice)

	stored, err := f.store.Requests().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, stored.Status)
}

func TestAcceptRequest_OnlyReceiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)

	_, err = f.svc.AcceptRequest(ctx, req.ID, f.alice)

	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Empty(t, f.user(t, f.bob).ConnectedPeers)
}

func TestAcceptRequest_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AcceptRequest(context.Background(), uuid.New(), f.bob)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAcceptRequest_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)
	_, err = f.svc.AcceptRequest(ctx, req.ID, f.bob)
	require.NoError(t, err)

	_, err = f.svc.AcceptRequest(ctx, req.ID, f.bob)

	assert.Equal(t, apperr.KindAlreadyHandled, apperr.KindOf(err))
	assert.Len(t, f.user(t, f.alice).ConnectedPeers, 1)
}

func TestSendRequest_AfterAcceptIsAlreadyConnected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)
	_, err = f.svc.AcceptRequest(ctx, req.ID, f.bob)
	require.NoError(t, err)

	_, err = f.svc.SendRequest(ctx, f.bob, f.alice)

	assert.Equal(t, apperr.KindAlreadyConnected, apperr.KindOf(err))
}

func TestRejectRequest_OnAcceptedIsAlreadyHandled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)
	_, err = f.svc.AcceptRequest(ctx, req.ID, f.bob)
	require.NoError(t, err)

	_, err = f.svc.RejectRequest(ctx, req.ID, f.bob)

	assert.Equal(t, apperr.KindAlreadyHandled, apperr.KindOf(err))
	stored, err := f.store.Requests().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, stored.Status)
	assert.Contains(t, f.user(t, f.alice).ConnectedPeers, f.bob)
}

func TestRejectRequest_KeepsHistoryAndAllowsResend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)

	rejected, err := f.svc.RejectRequest(ctx, req.ID, f.bob)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)
	assert.Empty(t, f.user(t, f.alice).ConnectedPeers)

	again, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)

	old, err := f.store.Requests().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, old.Status)
}

func TestRejectRequest_OnlyReceiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)

	_, err = f.svc.RejectRequest(ctx, req.ID, uuid.New())

	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestConcurrentAcceptAndReject_ExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = f.svc.AcceptRequest(ctx, req.ID, f.bob) }()
	go func() { defer wg.Done(); _, errs[1] = f.svc.RejectRequest(ctx, req.ID, f.bob) }()
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.Equal(t, apperr.KindAlreadyHandled, apperr.KindOf(err))
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	stored, err := f.store.Requests().GetByID(ctx, req.ID)
	require.NoError(t, err)
	connected := f.user(t, f.alice).IsConnectedTo(f.bob)
	assert.Equal(t, stored.Status == models.RequestAccepted, connected)
	assert.Equal(t, connected, f.user(t, f.bob).IsConnectedTo(f.alice))
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := uuid.New()
	f.store.PutUser(models.User{ID: carol, Name: "Carol", Department: "ME", Role: models.RoleStaff})

	toBob, err := f.svc.SendRequest(ctx, f.alice, f.bob)
	require.NoError(t, err)
	_, err = f.svc.SendRequest(ctx, carol, f.bob)
	require.NoError(t, err)
	_, err = f.svc.AcceptRequest(ctx, toBob.ID, f.bob)
	require.NoError(t, err)

	incoming, err := f.svc.ListPendingIncoming(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, carol, incoming[0].SenderID)
	assert.Equal(t, "Carol", incoming[0].Sender.Name)
	assert.Equal(t, models.RoleStaff, incoming[0].Sender.Role)

	outgoing, err := f.svc.ListPendingOutgoing(ctx, carol)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, f.bob, outgoing[0].ReceiverID)

	conns, err := f.svc.ListConnections(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, f.alice, conns[0].ID)
}
