package dummydb

import (
	"context"

	"github.com/fantakombat/backend/core/scoring"
)

type scoringRepository struct {
	db *DB
}

var _ scoring.Repository = (*scoringRepository)(nil) // interface compliance check

func NewScoringRepository(db *DB) scoring.Repository {
	return &scoringRepository{db: db}
}

func (repo *scoringRepository) QueryPresences(ctx context.Context, lessonIDs ...string) ([]scoring.Presence, error) {
	defer repo.db.read(ctx)()

	var presences []scoring.Presence
	for _, p := range repo.db.presences {
		if contains(lessonIDs, p.LessonID) {
			presences = append(presences, p)
		}
	}
	return presences, nil
}

func (repo *scoringRepository) CreatePresences(ctx context.Context, presences ...scoring.Presence) error {
	defer repo.db.write(ctx)()

	for _, p := range presences {
		var exists bool
		for _, existing := range repo.db.presences {
			if existing.UserID == p.UserID && existing.LessonID == p.LessonID {
				exists = true
				break
			}
		}
		if !exists {
			repo.db.presences = append(repo.db.presences, p)
		}
	}
	return nil
}

func (repo *scoringRepository) DeletePresences(ctx context.Context, lessonID string) error {
	defer repo.db.write(ctx)()

	t := &repo.db.tables
	presences := t.presences[:0]
	for _, p := range t.presences {
		if p.LessonID != lessonID {
			presences = append(presences, p)
		}
	}
	t.presences = presences
	return nil
}

// match reports whether s matches the filter. Callers hold a lock.
func (repo *scoringRepository) match(s scoring.Score, filter scoring.ScoreFilter, yearLessons map[string]bool) bool {
	if filter.UserID != "" && s.UserID != filter.UserID {
		return false
	}
	if filter.LessonID != "" && s.LessonID != filter.LessonID {
		return false
	}
	if filter.ActionIDs != nil && !contains(filter.ActionIDs, s.ActionID) {
		return false
	}
	if filter.AcademicYearID != "" && !yearLessons[s.LessonID] {
		return false
	}
	return true
}

func (repo *scoringRepository) yearLessons(academicYearID string) map[string]bool {
	if academicYearID == "" {
		return nil
	}
	ids := make(map[string]bool)
	for _, l := range repo.db.lessons {
		if l.AcademicYearID == academicYearID {
			ids[l.ID] = true
		}
	}
	return ids
}

func (repo *scoringRepository) QueryScores(ctx context.Context, filter scoring.ScoreFilter) ([]scoring.Score, error) {
	defer repo.db.read(ctx)()

	yearLessons := repo.yearLessons(filter.AcademicYearID)
	var scores []scoring.Score
	for _, s := range repo.db.scores {
		if repo.match(s, filter, yearLessons) {
			scores = append(scores, s)
		}
	}
	return scores, nil
}

func (repo *scoringRepository) GetScore(ctx context.Context, id string) (scoring.Score, error) {
	defer repo.db.read(ctx)()

	for _, s := range repo.db.scores {
		if s.ID == id {
			return s, nil
		}
	}
	return scoring.Score{}, scoring.ErrScoreNotFound
}

func (repo *scoringRepository) CreateScores(ctx context.Context, scores ...scoring.Score) ([]scoring.Score, error) {
	defer repo.db.write(ctx)()

	// UNIQUE (user_id, lesson_id, action_id)
	type scoreKey struct{ user, lesson, action string }
	taken := make(map[scoreKey]bool, len(repo.db.scores)+len(scores))
	for _, s := range repo.db.scores {
		taken[scoreKey{s.UserID, s.LessonID, s.ActionID}] = true
	}
	for _, s := range scores {
		k := scoreKey{s.UserID, s.LessonID, s.ActionID}
		if taken[k] {
			return nil, scoring.ErrAlreadyAssigned
		}
		taken[k] = true
	}

	created := make([]scoring.Score, 0, len(scores))
	for _, s := range scores {
		s.ID = newID()
		repo.db.scores = append(repo.db.scores, s)
		created = append(created, s)
	}
	return created, nil
}

func (repo *scoringRepository) DeleteScores(ctx context.Context, filter scoring.ScoreFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}
	defer repo.db.write(ctx)()

	t := &repo.db.tables
	yearLessons := repo.yearLessons(filter.AcademicYearID)
	var n int
	scores := t.scores[:0]
	for _, s := range t.scores {
		if repo.match(s, filter, yearLessons) {
			n++
			continue
		}
		scores = append(scores, s)
	}
	t.scores = scores
	return n, nil
}

func (repo *scoringRepository) DeleteScore(ctx context.Context, id string) error {
	defer repo.db.write(ctx)()

	for i, s := range repo.db.scores {
		if s.ID == id {
			repo.db.scores = append(repo.db.scores[:i], repo.db.scores[i+1:]...)
			return nil
		}
	}
	return scoring.ErrScoreNotFound
}
