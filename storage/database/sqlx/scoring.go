package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/scoring"
)

const (
	presenceColumns = "user_id, lesson_id, created_at"
	scoreColumns    = "id, user_id, lesson_id, action_id, points, assigned_by, notes, created_at"
)

type (
	presenceRow struct {
		UserID    string    `db:"user_id"`
		LessonID  string    `db:"lesson_id"`
		CreatedAt time.Time `db:"created_at"`
	}

	scoreRow struct {
		ID         string      `db:"id"`
		UserID     string      `db:"user_id"`
		LessonID   string      `db:"lesson_id"`
		ActionID   string      `db:"action_id"`
		Points     float64     `db:"points"`
		AssignedBy null.String `db:"assigned_by"`
		Notes      null.String `db:"notes"`
		CreatedAt  time.Time   `db:"created_at"`
	}
)

func toScoreRow(sc scoring.Score) scoreRow {
	return scoreRow{
		ID:         sc.ID,
		UserID:     sc.UserID,
		LessonID:   sc.LessonID,
		ActionID:   sc.ActionID,
		Points:     sc.Points,
		AssignedBy: null.NewString(sc.AssignedBy, sc.AssignedBy != ""),
		Notes:      null.NewString(sc.Notes, sc.Notes != ""),
		CreatedAt:  sc.CreatedAt.UTC(),
	}
}

func (r scoreRow) score() scoring.Score {
	return scoring.Score{
		ID:         r.ID,
		UserID:     r.UserID,
		LessonID:   r.LessonID,
		ActionID:   r.ActionID,
		Points:     r.Points,
		AssignedBy: r.AssignedBy.String,
		Notes:      r.Notes.String,
		CreatedAt:  r.CreatedAt,
	}
}

type scoringRepository struct {
	store *Store
}

var _ scoring.Repository = (*scoringRepository)(nil) // interface compliance check

func NewScoringRepository(store *Store) scoring.Repository {
	return &scoringRepository{store: store}
}

func (repo *scoringRepository) QueryPresences(ctx context.Context, lessonIDs ...string) ([]scoring.Presence, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	var rows []presenceRow
	err := repo.store.selectIn(ctx, &rows,
		"SELECT "+presenceColumns+" FROM presences WHERE lesson_id IN (?) ORDER BY created_at", lessonIDs)
	if err != nil {
		return nil, core.NewStorageError("querying presences", err)
	}
	presences := make([]scoring.Presence, 0, len(rows))
	for _, r := range rows {
		presences = append(presences, scoring.Presence{UserID: r.UserID, LessonID: r.LessonID, CreatedAt: r.CreatedAt})
	}
	return presences, nil
}

func (repo *scoringRepository) CreatePresences(ctx context.Context, presences ...scoring.Presence) error {
	for _, p := range presences {
		err := repo.store.insert(ctx, `
			INSERT INTO presences (`+presenceColumns+`) VALUES (:user_id, :lesson_id, :created_at)
			ON CONFLICT (user_id, lesson_id) DO NOTHING`,
			presenceRow{UserID: p.UserID, LessonID: p.LessonID, CreatedAt: p.CreatedAt.UTC()},
		)
		if err != nil {
			return core.NewStorageError("inserting presence", err)
		}
	}
	return nil
}

func (repo *scoringRepository) DeletePresences(ctx context.Context, lessonID string) error {
	_, err := repo.store.exec(ctx, "DELETE FROM presences WHERE lesson_id = ?", lessonID)
	return core.NewStorageError("deleting presences", err)
}

// scoreWhere reports ok == false when the filter cannot match any score.
func scoreWhere(filter scoring.ScoreFilter) (w where, ok bool) {
	if filter.UserID != "" {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.LessonID != "" {
		w.add("lesson_id = ?", filter.LessonID)
	}
	if filter.AcademicYearID != "" {
		w.add("lesson_id IN (SELECT id FROM lessons WHERE academic_year_id = ?)", filter.AcademicYearID)
	}
	if filter.ActionIDs != nil {
		if len(filter.ActionIDs) == 0 {
			return w, false
		}
		w.add("action_id IN (?)", filter.ActionIDs)
	}
	return w, true
}

func (repo *scoringRepository) QueryScores(ctx context.Context, filter scoring.ScoreFilter) ([]scoring.Score, error) {
	w, ok := scoreWhere(filter)
	if !ok {
		return nil, nil
	}
	var rows []scoreRow
	if err := repo.store.selectIn(ctx, &rows, "SELECT "+scoreColumns+" FROM scores"+w.String()+" ORDER BY seq", w.args...); err != nil {
		return nil, core.NewStorageError("querying scores", err)
	}
	scores := make([]scoring.Score, 0, len(rows))
	for _, r := range rows {
		scores = append(scores, r.score())
	}
	return scores, nil
}

func (repo *scoringRepository) GetScore(ctx context.Context, id string) (scoring.Score, error) {
	var r scoreRow
	if err := repo.store.get(ctx, &r, "SELECT "+scoreColumns+" FROM scores WHERE id = ?", id); err != nil {
		return scoring.Score{}, trapNoRowsErr(err, scoring.ErrScoreNotFound, "finding score")
	}
	return r.score(), nil
}

func (repo *scoringRepository) CreateScores(ctx context.Context, scores ...scoring.Score) ([]scoring.Score, error) {
	created := make([]scoring.Score, 0, len(scores))
	for _, sc := range scores {
		sc.ID = uuid.New().String()
		err := repo.store.insert(ctx, `
			INSERT INTO scores (`+scoreColumns+`)
			VALUES (:id, :user_id, :lesson_id, :action_id, :points, :assigned_by, :notes, :created_at)`,
			toScoreRow(sc),
		)
		if err != nil {
			if _, ok := uniqueViolation(err); ok {
				return nil, scoring.ErrAlreadyAssigned
			}
			return nil, core.NewStorageError("inserting score", err)
		}
		created = append(created, sc)
	}
	return created, nil
}

func (repo *scoringRepository) DeleteScores(ctx context.Context, filter scoring.ScoreFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}
	w, ok := scoreWhere(filter)
	if !ok {
		return 0, nil
	}
	n, err := repo.store.execIn(ctx, "DELETE FROM scores"+w.String(), w.args...)
	if err != nil {
		return 0, core.NewStorageError("deleting scores", err)
	}
	return int(n), nil
}

func (repo *scoringRepository) DeleteScore(ctx context.Context, id string) error {
	n, err := repo.store.exec(ctx, "DELETE FROM scores WHERE id = ?", id)
	if err != nil {
		return core.NewStorageError("deleting score", err)
	}
	if n == 0 {
		return scoring.ErrScoreNotFound
	}
	return nil
}
