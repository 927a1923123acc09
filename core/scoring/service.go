package scoring

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/user"
)

// GlobalRankingKey is the cache key of the system-wide leaderboard.
const GlobalRankingKey = "all"

type (
	// RankingCache stores computed leaderboards by academic year id (GlobalRankingKey for the global one).
	RankingCache interface {
		// Get reports found == false on a cache miss.
		Get(ctx context.Context, key string) (entries []RankedEntry, found bool, err error)
		Set(ctx context.Context, key string, entries []RankedEntry) error
		Invalidate(ctx context.Context, keys ...string) error
	}

	Service struct {
		repo     Repository
		courses  course.Repository
		users    user.Repository
		tx       core.Transactor
		cache    RankingCache
		validate *validator.Validate
		logger   core.Logger
		// generation is bumped on every invalidation; rankings computed across a bump are not cached.
		generation atomic.Uint64
	}
)

// NewService wires the scoring engine to its stores. cache may be nil.
func NewService(
	repo Repository,
	courseRepo course.Repository,
	usrRepo user.Repository,
	tx core.Transactor,
	cache RankingCache,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	if cache == nil {
		cache = noCache{}
	}
	return &Service{
		repo:     repo,
		courses:  courseRepo,
		users:    usrRepo,
		tx:       tx,
		cache:    cache,
		validate: validate,
		logger:   logger,
	}
}

// InvalidateRankings drops the cached leaderboards of the year and the global one.
// Cache failures are logged only.
func (svc *Service) InvalidateRankings(ctx context.Context, academicYearID string) {
	keys := []string{GlobalRankingKey}
	if academicYearID != "" {
		keys = append(keys, academicYearID)
	}
	svc.invalidate(ctx, keys...)
}

func (svc *Service) invalidate(ctx context.Context, keys ...string) {
	svc.generation.Add(1)
	if err := svc.cache.Invalidate(ctx, keys...); err != nil {
		svc.logger.Warn(fmt.Sprintf("invalidating rankings %v", keys), err)
	}
}

// UsersChanging is a user.ChangeHook: once the users are stored, the global leaderboard
// and those of the years they were enrolled in are invalidated.
func (svc *Service) UsersChanging(ctx context.Context, ids ...string) func(context.Context) {
	keys := []string{GlobalRankingKey}
	for _, id := range ids {
		years, err := svc.courses.QueryYears(ctx, course.YearFilter{EnrolledUserID: id})
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("querying enrolled years of %q", id), err)
			continue
		}
		for _, y := range years {
			keys = append(keys, y.ID)
		}
	}
	keys = core.UniqueStrings(keys)
	return func(ctx context.Context) {
		svc.invalidate(ctx, keys...)
	}
}

type noCache struct{}

func (noCache) Get(context.Context, string) ([]RankedEntry, bool, error) { return nil, false, nil }
func (noCache) Set(context.Context, string, []RankedEntry) error         { return nil }
func (noCache) Invalidate(context.Context, ...string) error              { return nil }
