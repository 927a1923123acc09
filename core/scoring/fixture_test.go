package scoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
	"github.com/fantakombat/backend/core/user"
	dummydb "github.com/fantakombat/backend/storage/database/dummy"
	testutil "github.com/fantakombat/backend/tests"
)

type fixture struct {
	db      *dummydb.DB
	usrRepo user.Repository
	crsRepo course.Repository
	scRepo  scoring.Repository
	courses *course.Service
	svc     *scoring.Service
	cache   *mapCache
	logger  *testutil.Logger

	teacher user.User
	course  course.Course
	year    course.AcademicYear
}

func newFixture(t *testing.T, repoWrappers ...func(scoring.Repository) scoring.Repository) *fixture {
	t.Helper()

	db := dummydb.Open()
	validate, _ := testutil.NewValidator()
	f := &fixture{
		db:      db,
		usrRepo: dummydb.NewUserRepository(db),
		crsRepo: dummydb.NewCourseRepository(db),
		scRepo:  dummydb.NewScoringRepository(db),
		cache:   newMapCache(),
		logger:  testutil.NewLogger(),
	}
	for _, wrap := range repoWrappers {
		f.scRepo = wrap(f.scRepo)
	}
	f.courses = course.NewService(f.crsRepo, f.usrRepo, db, validate, testutil.Config(), f.logger)
	f.svc = scoring.NewService(f.scRepo, f.crsRepo, f.usrRepo, db, f.cache, validate, f.logger)

	ctx := context.Background()
	var err error
	f.teacher = testutil.CreateTeacher(t, f.usrRepo, "maestro")
	f.course, err = f.courses.CreateCourse(ctx, f.teacher, course.NewCourse{Name: "Kombat"})
	require.NoError(t, err)
	f.year, err = f.courses.CreateYear(ctx, f.course, course.NewAcademicYear{Name: "2024/2025", StartDate: day(1)})
	require.NoError(t, err)
	return f
}

func day(n int) time.Time {
	return time.Date(2024, time.September, 1, 19, 0, 0, 0, time.UTC).AddDate(0, 0, n-1)
}

// lessons creates n lessons on consecutive days, in chronological order.
func (f *fixture) lessons(t *testing.T, n int) []course.Lesson {
	t.Helper()
	lessons := make([]course.Lesson, 0, n)
	for i := 1; i <= n; i++ {
		l, err := f.courses.CreateLesson(context.Background(), f.year, course.NewLesson{Date: day(i)})
		require.NoError(t, err)
		lessons = append(lessons, l)
	}
	return lessons
}

func (f *fixture) enroll(t *testing.T, names ...string) []user.User {
	t.Helper()
	students := make([]user.User, 0, len(names))
	ids := make([]string, 0, len(names))
	for _, name := range names {
		st := testutil.CreateStudent(t, f.usrRepo, name)
		students = append(students, st)
		ids = append(ids, st.ID)
	}
	_, err := f.courses.Enroll(context.Background(), f.year, ids...)
	require.NoError(t, err)
	return students
}

func (f *fixture) action(t *testing.T, name string) course.Action {
	t.Helper()
	actions, err := f.crsRepo.QueryActions(context.Background(), course.ActionFilter{CourseID: f.course.ID, Name: name})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	return actions[0]
}

func (f *fixture) scores(t *testing.T, filter scoring.ScoreFilter) []scoring.Score {
	t.Helper()
	scores, err := f.scRepo.QueryScores(context.Background(), filter)
	require.NoError(t, err)
	return scores
}

func (f *fixture) presences(t *testing.T, lessonID string) []scoring.Presence {
	t.Helper()
	presences, err := f.scRepo.QueryPresences(context.Background(), lessonID)
	require.NoError(t, err)
	return presences
}

func (f *fixture) setAttendance(t *testing.T, lesson course.Lesson, present ...user.User) scoring.AttendanceSummary {
	t.Helper()
	ids := make([]string, 0, len(present))
	for _, usr := range present {
		ids = append(ids, usr.ID)
	}
	summary, err := f.svc.SetAttendance(context.Background(), lesson.ID, f.teacher.ID, ids)
	require.NoError(t, err)
	return summary
}

// mapCache is an in-process RankingCache.
type mapCache struct {
	entries     map[string][]scoring.RankedEntry
	hits        int
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]scoring.RankedEntry)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]scoring.RankedEntry, bool, error) {
	entries, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return entries, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, entries []scoring.RankedEntry) error {
	c.entries[key] = entries
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
		c.invalidated = append(c.invalidated, key)
	}
	return nil
}
