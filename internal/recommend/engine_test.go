package recommend

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/apperr"
	"github.com/lalith-99/campusconnect/internal/connection"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ids(recs []Recommendation) []uuid.UUID {
	out := make([]uuid.UUID, len(recs))
	for i, r := range recs {
		out[i] = r.User.ID
	}
	return out
}

func TestScore(t *testing.T) {
	user := &models.User{
		Department: "CSE",
		Location:   "Bangalore",
		Interests:  []models.Interest{models.InterestMusic, models.InterestSports},
	}

	tests := []struct {
		name      string
		candidate models.User
		want      int
	}{
		{
			name:      "department and one interest",
			candidate: models.User{Department: "CSE", Location: "Mumbai", Interests: []models.Interest{models.InterestMusic}},
			want:      7,
		},
		{
			name:      "everything matches",
			candidate: models.User{Department: "CSE", Location: "Bangalore", Interests: []models.Interest{models.InterestSports, models.InterestMusic}},
			want:      12,
		},
		{
			name:      "location only",
			candidate: models.User{Department: "ECE", Location: "Bangalore"},
			want:      3,
		},
		{
			name:      "nothing in common",
			candidate: models.User{Department: "ME", Location: "Delhi", Interests: []models.Interest{models.InterestDance}},
			want:      0,
		},
		{
			name:      "duplicate interest counted once",
			candidate: models.User{Interests: []models.Interest{models.InterestMusic, models.InterestMusic}},
			want:      2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(user, &tt.candidate))
		})
	}
}

func TestScore_BlankFieldsNeverMatch(t *testing.T) {
	a := &models.User{}
	b := &models.User{}

	assert.Equal(t, 0, Score(a, b))
}

func TestRecommend_ScenarioScore(t *testing.T) {
	store := memory.New()
	u := models.User{ID: uuid.New(), Department: "CSE", Location: "Bangalore",
		Interests: []models.Interest{models.InterestMusic, models.InterestSports}}
	v := models.User{ID: uuid.New(), Department: "CSE", Location: "Mumbai",
		Interests: []models.Interest{models.InterestMusic}}
	store.PutUser(u)
	store.PutUser(v)

	ranking, err := NewEngine(store, zap.NewNop()).Recommend(context.Background(), u.ID)
	require.NoError(t, err)

	recs := ranking.Collect(0)
	require.Len(t, recs, 1)
	assert.Equal(t, v.ID, recs[0].User.ID)
	assert.Equal(t, 7, recs[0].Score)
}

func TestRecommend_Exclusions(t *testing.T) {
	store := memory.New()
	conns := connection.NewService(store.Users(), store.Requests(), zap.NewNop())
	ctx := context.Background()

	me := models.User{ID: uuid.New(), Name: "me", Department: "CSE"}
	peer := models.User{ID: uuid.New(), Name: "peer", Department: "CSE"}
	invited := models.User{ID: uuid.New(), Name: "invited", Department: "CSE"}
	inviter := models.User{ID: uuid.New(), Name: "inviter", Department: "CSE"}
	rejected := models.User{ID: uuid.New(), Name: "rejected", Department: "CSE"}
	stranger := models.User{ID: uuid.New(), Name: "stranger"}
	for _, u := range []models.User{me, peer, invited, inviter, rejected, stranger} {
		store.PutUser(u)
	}

	req, err := conns.SendRequest(ctx, me.ID, peer.ID)
	require.NoError(t, err)
	_, err = conns.AcceptRequest(ctx, req.ID, peer.ID)
	require.NoError(t, err)

	_, err = conns.SendRequest(ctx, me.ID, invited.ID)
	require.NoError(t, err)

	_, err = conns.SendRequest(ctx, inviter.ID, me.ID)
	require.NoError(t, err)

	req, err = conns.SendRequest(ctx, me.ID, rejected.ID)
	require.NoError(t, err)
	_, err = conns.RejectRequest(ctx, req.ID, rejected.ID)
	require.NoError(t, err)

	ranking, err := NewEngine(store, zap.NewNop()).Recommend(ctx, me.ID)
	require.NoError(t, err)
	got := ids(ranking.Collect(0))

	assert.NotContains(t, got, me.ID)
	assert.NotContains(t, got, peer.ID)
	assert.NotContains(t, got, invited.ID)
	assert.Contains(t, got, inviter.ID)
	assert.Contains(t, got, rejected.ID)
	assert.Contains(t, got, stranger.ID)
	assert.Len(t, got, 3)
}

func TestRecommend_OrderingAndTieBreak(t *testing.T) {
	store := memory.New()
	me := models.User{ID: uuid.New(), Department: "CSE", Location: "Pune"}
	store.PutUser(me)

	best := models.User{ID: uuid.New(), Department: "CSE", Location: "Pune"}
	store.PutUser(best)

	var tied []uuid.UUID
	for range 5 {
		u := models.User{ID: uuid.New(), Department: "CSE"}
		store.PutUser(u)
		tied = append(tied, u.ID)
	}
	slices.SortFunc(tied, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})

	ranking, err := NewEngine(store, zap.NewNop()).Recommend(context.Background(), me.ID)
	require.NoError(t, err)
	recs := ranking.Collect(0)

	require.Len(t, recs, 6)
	assert.Equal(t, best.ID, recs[0].User.ID)
	assert.Equal(t, 8, recs[0].Score)
	assert.Equal(t, tied, ids(recs[1:]))
}

func TestRanking_RestartableAndLimited(t *testing.T) {
	store := memory.New()
	me := models.User{ID: uuid.New(), Department: "CSE"}
	store.PutUser(me)
	for range 4 {
		store.PutUser(models.User{ID: uuid.New(), Department: "CSE"})
	}

	ranking, err := NewEngine(store, zap.NewNop()).Recommend(context.Background(), me.ID)
	require.NoError(t, err)

	var first []uuid.UUID
	for rec := range ranking.All() {
		first = append(first, rec.User.ID)
		if len(first) == 2 {
			break
		}
	}

	all := ids(ranking.Collect(0))
	assert.Len(t, all, 4)
	assert.Equal(t, all[:2], first)
	assert.Equal(t, all, ids(ranking.Collect(0)))
	assert.Equal(t, all[:3], ids(ranking.Collect(3)))
}

func TestRanking_IsLazy(t *testing.T) {
	store := memory.New()
	me := models.User{ID: uuid.New()}
	store.PutUser(me)
	store.PutUser(models.User{ID: uuid.New()})

	ranking, err := NewEngine(store, zap.NewNop()).Recommend(context.Background(), me.ID)
	require.NoError(t, err)

	assert.Nil(t, ranking.ranked)
	ranking.Collect(1)
	assert.Len(t, ranking.ranked, 1)
}

func TestRecommend_UnknownUser(t *testing.T) {
	_, err := NewEngine(memory.New(), zap.NewNop()).Recommend(context.Background(), uuid.New())

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRecommend_NoCandidates(t *testing.T) {
	store := memory.New()
	me := models.User{ID: uuid.New()}
	store.PutUser(me)

	ranking, err := NewEngine(store, zap.NewNop()).Recommend(context.Background(), me.ID)
	require.NoError(t, err)

	assert.Empty(t, ranking.Collect(0))
}
