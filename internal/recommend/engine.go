// Package recommend ranks users a caller is not yet connected to.
package recommend

import (
	"cmp"
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/apperr"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/repository"
	"go.uber.org/zap"
)

// Weights of each matching attribute.
const (
	DepartmentWeight = 5
	LocationWeight   = 3
	InterestWeight   = 2
)

// Recommendation is one ranked candidate.
type Recommendation struct {
	User  models.User `json:"user"`
	Score int         `json:"score"`
}

type Engine struct {
	snapshots repository.SnapshotReader
	logger    *zap.Logger
}

func NewEngine(snapshots repository.SnapshotReader, logger *zap.Logger) *Engine {
	return &Engine{
		snapshots: snapshots,
		logger:    logger.Named("recommend"),
	}
}

// Recommend reads a consistent snapshot of the graph for userID and returns
// a Ranking over it. No scoring happens until the Ranking is iterated.
func (e *Engine) Recommend(ctx context.Context, userID uuid.UUID) (*Ranking, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id is required")
	}

	snap, err := e.snapshots.Snapshot(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.Internal("read graph snapshot", err)
	}

	e.logger.Debug("snapshot loaded",
		zap.String("user_id", userID.String()),
		zap.Int("users", len(snap.Users)),
		zap.Int("outgoing_pending", len(snap.OutgoingPendingTo)),
	)
	return newRanking(snap), nil
}

// Ranking is the ordered candidate list for one snapshot. It is safe for
// concurrent use; the ordering is computed once on first iteration.
type Ranking struct {
	snap *repository.GraphSnapshot

	once   sync.Once
	ranked []Recommendation
}

func newRanking(snap *repository.GraphSnapshot) *Ranking {
	return &Ranking{snap: snap}
}

// All yields candidates by score descending, then id ascending. Each call
// starts again from the top.
func (r *Ranking) All() iter.Seq[Recommendation] {
	return func(yield func(Recommendation) bool) {
		r.once.Do(r.rank)
		for _, rec := range r.ranked {
			if !yield(rec) {
				return
			}
		}
	}
}

// Collect returns the first limit recommendations, or all of them when
// limit <= 0.
func (r *Ranking) Collect(limit int) []Recommendation {
	out := make([]Recommendation, 0)
	for rec := range r.All() {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, rec)
	}
	return out
}

func (r *Ranking) rank() {
	me := r.snap.User

	excluded := make(map[uuid.UUID]struct{}, len(me.ConnectedPeers)+len(r.snap.OutgoingPendingTo)+1)
	excluded[me.ID] = struct{}{}
	for _, id := range me.ConnectedPeers {
		excluded[id] = struct{}{}
	}
	for _, id := range r.snap.OutgoingPendingTo {
		excluded[id] = struct{}{}
	}

	ranked := make([]Recommendation, 0, len(r.snap.Users))
	for _, candidate := range r.snap.Users {
		if _, skip := excluded[candidate.ID]; skip {
			continue
		}
		ranked = append(ranked, Recommendation{
			User:  candidate,
			Score: Score(&me, &candidate),
		})
	}

	slices.SortFunc(ranked, func(a, b Recommendation) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			strings.Compare(a.User.ID.String(), b.User.ID.String()),
		)
	})
	r.ranked = ranked
}

// Score computes how well candidate matches user. Blank department or
// location values never match.
func Score(user, candidate *models.User) int {
	score := 0
	if user.Department != "" && user.Department == candidate.Department {
		score += DepartmentWeight
	}
	if user.Location != "" && user.Location == candidate.Location {
		score += LocationWeight
	}
	return score + InterestWeight*commonInterests(user.Interests, candidate.Interests)
}

func commonInterests(a, b []models.Interest) int {
	seen := make(map[models.Interest]struct{}, len(a))
	for _, i := range a {
		seen[i] = struct{}{}
	}
	n := 0
	for _, i := range b {
		if _, ok := seen[i]; ok {
			n++
			delete(seen, i)
		}
	}
	return n
}
