package scoring

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/user"
)

var (
	ErrActionsNotFound   = errors.New("some actions were not found")
	ErrAutomaticAssigned = errors.New("automatic actions are assigned through attendance")
	ErrAlreadyAssigned   = errors.New("the user already has these scores for this lesson")
)

// AssignScores grants manual actions to a student at a lesson.
// Every action must belong to the lesson's course, be manual and not already granted to
// the student at this lesson; otherwise nothing is written.
func (svc *Service) AssignScores(ctx context.Context, lessonID, assignedBy string, a Assignment) (AssignmentResult, error) {
	a.ActionIDs = core.UniqueStrings(a.ActionIDs)
	a.Notes = core.CleanString(a.Notes)
	if err := svc.validate.Struct(a); err != nil {
		return AssignmentResult{}, err
	}

	var res AssignmentResult
	var yearID string
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		lc, err := course.ResolveLesson(ctx, svc.courses, lessonID)
		if err != nil {
			return errors.Wrap(err, "resolving lesson")
		}
		yearID = lc.Year.ID

		students, err := course.EnrolledStudents(ctx, svc.courses, svc.users, yearID)
		if err != nil {
			return err
		}
		if err = checkEnrolled([]string{a.UserID}, students); err != nil {
			return err
		}

		actions, err := svc.courses.QueryActions(ctx, course.ActionFilter{CourseID: lc.Course.ID, IDs: a.ActionIDs})
		if err != nil {
			return errors.Wrap(err, "querying actions")
		}
		if missing := missingIDs(a.ActionIDs, actions); len(missing) > 0 {
			return core.NewValidationError(
				ErrActionsNotFound,
				core.FieldError{Field: "actionIds", Error: fmt.Sprintf("%s: %s", ErrActionsNotFound, strings.Join(missing, ", "))},
			)
		}
		for _, act := range actions {
			if act.IsAutomatic {
				return core.NewValidationError(
					ErrAutomaticAssigned,
					core.FieldError{Field: "actionIds", Error: fmt.Sprintf("%s: %s", ErrAutomaticAssigned, act.Name)},
				)
			}
		}

		existing, err := svc.repo.QueryScores(ctx, ScoreFilter{UserID: a.UserID, LessonID: lessonID, ActionIDs: a.ActionIDs})
		if err != nil {
			return errors.Wrap(err, "querying existing scores")
		}
		if len(existing) > 0 {
			names := make([]string, 0, len(existing))
			for _, sc := range existing {
				names = append(names, actionName(actions, sc.ActionID))
			}
			return core.NewValidationError(
				ErrAlreadyAssigned,
				core.FieldError{Field: "actionIds", Error: fmt.Sprintf("%s: %s", ErrAlreadyAssigned, strings.Join(names, ", "))},
			)
		}

		now := time.Now().UTC()
		scores := make([]Score, 0, len(actions))
		names := make([]string, 0, len(actions))
		for _, act := range actions {
			scores = append(scores, Score{
				UserID:     a.UserID,
				LessonID:   lessonID,
				ActionID:   act.ID,
				Points:     act.Points,
				AssignedBy: assignedBy,
				Notes:      a.Notes,
				CreatedAt:  now,
			})
			res.Total += act.Points
			names = append(names, act.Name)
		}
		if res.Scores, err = svc.repo.CreateScores(ctx, scores...); err != nil {
			if errors.Is(err, ErrAlreadyAssigned) {
				// assigned concurrently since the check above
				return core.NewValidationError(ErrAlreadyAssigned, core.FieldError{Field: "actionIds", Error: ErrAlreadyAssigned.Error()})
			}
			return errors.Wrap(err, "creating scores")
		}
		res.Message = fmt.Sprintf(
			"%d azioni assegnate con successo (%s) per un totale di %s punti",
			len(actions), strings.Join(names, ", "), signedPoints(res.Total),
		)
		return nil
	})
	if err != nil {
		return AssignmentResult{}, err
	}

	svc.InvalidateRankings(ctx, yearID)
	return res, nil
}

func missingIDs(ids []string, actions []course.Action) []string {
	found := make(map[string]bool, len(actions))
	for _, act := range actions {
		found[act.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func actionName(actions []course.Action, id string) string {
	for _, act := range actions {
		if act.ID == id {
			return act.Name
		}
	}
	return id
}

func (svc *Service) GetScore(ctx context.Context, id string) (Score, error) {
	return svc.repo.GetScore(ctx, id)
}

// RemoveScore deletes one score of the ledger.
func (svc *Service) RemoveScore(ctx context.Context, sc Score) error {
	var yearID string
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		lesson, err := svc.courses.GetLesson(ctx, sc.LessonID)
		if err != nil && !core.IsNotFound(err) {
			return errors.Wrap(err, "finding score lesson")
		}
		yearID = lesson.AcademicYearID
		return svc.repo.DeleteScore(ctx, sc.ID)
	})
	if err != nil {
		return err
	}

	svc.InvalidateRankings(ctx, yearID)
	return nil
}

// LessonRecord is everything recorded at a lesson.
type LessonRecord struct {
	Lesson    course.Lesson `json:"lesson"`
	Presences []Presence    `json:"presences"`
	Scores    []Score       `json:"scores"`
}

func (svc *Service) LessonRecord(ctx context.Context, lesson course.Lesson) (LessonRecord, error) {
	presences, err := svc.repo.QueryPresences(ctx, lesson.ID)
	if err != nil {
		return LessonRecord{}, errors.Wrap(err, "querying presences")
	}
	scores, err := svc.repo.QueryScores(ctx, ScoreFilter{LessonID: lesson.ID})
	if err != nil {
		return LessonRecord{}, errors.Wrap(err, "querying scores")
	}
	if presences == nil {
		presences = []Presence{}
	}
	if scores == nil {
		scores = []Score{}
	}
	return LessonRecord{Lesson: lesson, Presences: presences, Scores: scores}, nil
}

// ScoreHistory lists the scores of the user, newest lesson first, with the running total
// accumulated in chronological order. academicYearID may be empty.
func (svc *Service) ScoreHistory(ctx context.Context, usr user.User, academicYearID string) (ScoreHistory, error) {
	scores, err := svc.repo.QueryScores(ctx, ScoreFilter{UserID: usr.ID, AcademicYearID: academicYearID})
	if err != nil {
		return ScoreHistory{}, errors.Wrap(err, "querying scores")
	}

	lessons := make(map[string]course.Lesson)
	actions := make(map[string]course.Action)
	entries := make([]ScoreEntry, 0, len(scores))
	for _, sc := range scores {
		lesson, ok := lessons[sc.LessonID]
		if !ok {
			if lesson, err = svc.courses.GetLesson(ctx, sc.LessonID); err != nil {
				return ScoreHistory{}, errors.Wrap(err, "finding score lesson")
			}
			lessons[sc.LessonID] = lesson
		}
		act, ok := actions[sc.ActionID]
		if !ok {
			if act, err = svc.courses.GetAction(ctx, sc.ActionID); err != nil {
				return ScoreHistory{}, errors.Wrap(err, "finding score action")
			}
			actions[sc.ActionID] = act
		}
		entries = append(entries, ScoreEntry{
			Score:       sc,
			ActionName:  act.Name,
			LessonDate:  lesson.Date,
			LessonTitle: lesson.Title,
		})
	}

	// oldest first to accumulate, then newest first for display
	sortEntries(entries, false)
	var total float64
	for i := range entries {
		total += entries[i].Points
		entries[i].RunningTotal = total
	}
	sortEntries(entries, true)

	return ScoreHistory{Entries: entries, TotalPoints: total}, nil
}

func sortEntries(entries []ScoreEntry, newestFirst bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if newestFirst {
			a, b = b, a
		}
		if !a.LessonDate.Equal(b.LessonDate) {
			return a.LessonDate.Before(b.LessonDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
