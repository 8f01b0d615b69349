package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/campusconnect/internal/db"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testPool connects to TEST_DATABASE_URL, applies the schema and empties
// every table. Tests in this file share one database and must not run in
// parallel.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := db.New(ctx, url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(ctx))

	_, err = database.Pool().Exec(ctx,
		`TRUNCATE chat_messages, chats, connection_requests, user_connections, users CASCADE`)
	require.NoError(t, err)
	return database.Pool()
}

func insertUser(t *testing.T, pool *pgxpool.Pool, u models.User) uuid.UUID {
	t.Helper()
	interests := make([]string, len(u.Interests))
	for i, in := range u.Interests {
		interests[i] = string(in)
	}
	role := u.Role
	if role == "" {
		role = models.RoleStudent
	}

	var id uuid.UUID
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (name, department, location, role, interests)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		u.Name, u.Department, u.Location, string(role), interests,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestRequestStore_OnePendingUnderConcurrency(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	alice := insertUser(t, pool, models.User{Name: "Alice"})
	bob := insertUser(t, pool, models.User{Name: "Bob"})
	requests := NewRequestStore(pool)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = requests.CreatePending(ctx, alice, bob)
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrDuplicatePending)
	}
	assert.Equal(t, 1, created)

	outgoing, err := requests.ListPendingOutgoing(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, outgoing, 1)
}

func TestRequestStore_AcceptConnectsBothSides(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	alice := insertUser(t, pool, models.User{Name: "Alice"})
	bob := insertUser(t, pool, models.User{Name: "Bob", Department: "ECE", Role: models.RoleStaff})
	requests := NewRequestStore(pool)
	users := NewUserStore(pool)

	req, err := requests.CreatePending(ctx, alice, bob)
	require.NoError(t, err)

	incoming, err := requests.ListPendingIncoming(ctx, bob)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, "Alice", incoming[0].Sender.Name)

	accepted, err := requests.Accept(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, accepted.Status)

	a, err := users.GetByID(ctx, alice)
	require.NoError(t, err)
	b, err := users.GetByID(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob}, a.ConnectedPeers)
	assert.Equal(t, []uuid.UUID{alice}, b.ConnectedPeers)

	_, err = requests.Reject(ctx, req.ID)
	assert.ErrorIs(t, err, repository.ErrNotPending)

	_, err = requests.CreatePending(ctx, bob, alice)
	assert.ErrorIs(t, err, repository.ErrAlreadyConnected)

	_, err = requests.Accept(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRequestStore_RejectedDoesNotBlockResend(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	alice := insertUser(t, pool, models.User{Name: "Alice"})
	bob := insertUser(t, pool, models.User{Name: "Bob"})
	requests := NewRequestStore(pool)

	req, err := requests.CreatePending(ctx, alice, bob)
	require.NoError(t, err)
	_, err = requests.Reject(ctx, req.ID)
	require.NoError(t, err)

	again, err := requests.CreatePending(ctx, alice, bob)
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)

	_, err = requests.CreatePending(ctx, alice, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestChatStore_FindOrCreateConverges(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	alice := insertUser(t, pool, models.User{Name: "Alice"})
	bob := insertUser(t, pool, models.User{Name: "Bob"})
	chats := NewChatStore(pool)

	const callers = 10
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 0 {
				a, b = b, a
			}
			chat, err := chats.FindOrCreate(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = chat.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM chats`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestChatStore_AppendMessage(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	alice := insertUser(t, pool, models.User{Name: "Alice"})
	bob := insertUser(t, pool, models.User{Name: "Bob"})
	chats := NewChatStore(pool)

	chat, err := chats.FindOrCreate(ctx, alice, bob)
	require.NoError(t, err)

	_, _, err = chats.AppendMessage(ctx, chat.ID, alice, "hi")
	require.NoError(t, err)
	msg, updated, err := chats.AppendMessage(ctx, chat.ID, bob, "hey")
	require.NoError(t, err)

	require.Len(t, updated.Messages, 2)
	assert.Equal(t, "hi", updated.Messages[0].Content)
	assert.Equal(t, "hey", updated.Messages[1].Content)
	assert.True(t, updated.LastUpdated.Equal(msg.Timestamp))
	assert.False(t, updated.Messages[1].Timestamp.Before(updated.Messages[0].Timestamp))

	listed, err := chats.ListByUser(ctx, bob)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Len(t, listed[0].Messages, 2)

	_, _, err = chats.AppendMessage(ctx, uuid.New(), alice, "lost")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestSnapshotStore(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	me := insertUser(t, pool, models.User{Name: "Me", Department: "CSE",
		Interests: []models.Interest{models.InterestMusic}})
	peer := insertUser(t, pool, models.User{Name: "Peer"})
	invited := insertUser(t, pool, models.User{Name: "Invited"})
	requests := NewRequestStore(pool)

	req, err := requests.CreatePending(ctx, me, peer)
	require.NoError(t, err)
	_, err = requests.Accept(ctx, req.ID)
	require.NoError(t, err)
	_, err = requests.CreatePending(ctx, me, invited)
	require.NoError(t, err)

	snap, err := NewSnapshotStore(pool).Snapshot(ctx, me)
	require.NoError(t, err)

	assert.Equal(t, me, snap.User.ID)
	assert.Equal(t, []models.Interest{models.InterestMusic}, snap.User.Interests)
	assert.Equal(t, []uuid.UUID{peer}, snap.User.ConnectedPeers)
	assert.Equal(t, []uuid.UUID{invited}, snap.OutgoingPendingTo)
	assert.Len(t, snap.Users, 3)

	_, err = NewSnapshotStore(pool).Snapshot(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
