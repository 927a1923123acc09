package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/user"
)

var ErrNotEnrolled = errors.New("some present users are not enrolled in this academic year")

// SetAttendance records the students present at a lesson and regenerates its automatic scores.
//
// Presences and automatic scores of the lesson are purged, then every student enrolled in the
// lesson's academic year gets the flat presence or absence score plus, when a streak level is
// reached, the streak bonus or malus. Manual scores are kept. The whole sequence runs in one
// transaction, so submitting the same attendance twice leaves the same state.
//
// A missing automatic action skips the matching grants and is reported in the summary warnings.
func (svc *Service) SetAttendance(
	ctx context.Context,
	lessonID, assignedBy string,
	presentUserIDs []string,
) (AttendanceSummary, error) {
	presentUserIDs = core.UniqueStrings(presentUserIDs)
	present := make(map[string]bool, len(presentUserIDs))
	for _, id := range presentUserIDs {
		present[id] = true
	}

	var summary AttendanceSummary
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
		if err = checkEnrolled(presentUserIDs, students); err != nil {
			return err
		}

		actions, err := svc.automaticActions(ctx, lc.Course.ID)
		if err != nil {
			return err
		}
		summary = AttendanceSummary{
			PresentCount:  len(presentUserIDs),
			BonusMessages: []string{},
			MalusMessages: []string{},
			Warnings:      []string{},
		}
		for _, name := range course.AutomaticActionNames {
			if _, ok := actions[name]; !ok {
				summary.Warnings = append(summary.Warnings, missingActionWarning(name))
				svc.logger.Warn(fmt.Sprintf("automatic action %q not found for course %s", name, lc.Course.ID))
			}
		}

		// purge
		if err = svc.repo.DeletePresences(ctx, lessonID); err != nil {
			return errors.Wrap(err, "deleting presences")
		}
		if len(actions) > 0 {
			ids := make([]string, 0, len(actions))
			for _, act := range actions {
				ids = append(ids, act.ID)
			}
			if _, err = svc.repo.DeleteScores(ctx, ScoreFilter{LessonID: lessonID, ActionIDs: ids}); err != nil {
				return errors.Wrap(err, "deleting automatic scores")
			}
		}

		// regenerate
		now := time.Now().UTC()
		presences := make([]Presence, 0, len(presentUserIDs))
		for _, id := range presentUserIDs {
			presences = append(presences, Presence{UserID: id, LessonID: lessonID, CreatedAt: now})
		}
		if err = svc.repo.CreatePresences(ctx, presences...); err != nil {
			return errors.Wrap(err, "creating presences")
		}

		histories, err := svc.presenceHistories(ctx, lc)
		if err != nil {
			return err
		}

		scores := make([]Score, 0, 2*len(students))
		newScore := func(userID string, act course.Action, points float64, notes string) Score {
			return Score{
				UserID:     userID,
				LessonID:   lessonID,
				ActionID:   act.ID,
				Points:     points,
				AssignedBy: assignedBy,
				Notes:      notes,
				CreatedAt:  now,
			}
		}
		for _, st := range students {
			isPresent := present[st.ID]

			flat := course.ActionAbsence
			if isPresent {
				flat = course.ActionPresence
			}
			if act, ok := actions[flat]; ok {
				scores = append(scores, newScore(st.ID, act, act.Points, ""))
			}

			streak := CalculateStreak(histories.of(st.ID, isPresent))
			if streak == nil {
				continue
			}
			name := course.ActionAbsenceStreak
			if streak.Present {
				name = course.ActionPresenceStreak
			}
			act, ok := actions[name]
			if !ok {
				continue
			}
			scores = append(scores, newScore(st.ID, act, streak.Points, streak.Note()))
			if streak.Present {
				summary.BonusMessages = append(summary.BonusMessages, streak.Message(st.Name))
			} else {
				summary.MalusMessages = append(summary.MalusMessages, streak.Message(st.Name))
			}
		}

		if _, err = svc.repo.CreateScores(ctx, scores...); err != nil {
			return errors.Wrap(err, "creating automatic scores")
		}
		return nil
	})
	if err != nil {
		return AttendanceSummary{}, err
	}

	svc.InvalidateRankings(ctx, yearID)
	return summary, nil
}

// automaticActions returns the automatic actions of the course by name.
func (svc *Service) automaticActions(ctx context.Context, courseID string) (map[string]course.Action, error) {
	automatic := true
	actions, err := svc.courses.QueryActions(ctx, course.ActionFilter{CourseID: courseID, IsAutomatic: &automatic})
	if err != nil {
		return nil, errors.Wrap(err, "querying automatic actions")
	}
	byName := make(map[string]course.Action, len(actions))
	for _, act := range actions {
		if course.IsAutomaticActionName(act.Name) {
			byName[act.Name] = act
		}
	}
	return byName, nil
}

func checkEnrolled(userIDs []string, students []user.User) error {
	enrolled := make(map[string]bool, len(students))
	for _, st := range students {
		enrolled[st.ID] = true
	}
	for _, id := range userIDs {
		if !enrolled[id] {
			return core.NewValidationError(
				ErrNotEnrolled,
				core.FieldError{Field: "userIds", Error: fmt.Sprintf("%s: %s", ErrNotEnrolled, id)},
			)
		}
	}
	return nil
}

// histories holds the presences at the lessons preceding the current one, most recent first.
type histories struct {
	previous []string // lesson ids
	attended map[string]map[string]bool
}

// presenceHistories loads the presences at the lessons of the year dated on or before the current lesson.
func (svc *Service) presenceHistories(ctx context.Context, lc course.LessonContext) (histories, error) {
	lessons, err := svc.courses.QueryLessons(ctx, course.LessonFilter{
		AcademicYearID: lc.Year.ID,
		Until:          lc.Lesson.Date,
	})
	if err != nil {
		return histories{}, errors.Wrap(err, "querying previous lessons")
	}

	h := histories{
		previous: make([]string, 0, len(lessons)),
		attended: make(map[string]map[string]bool, len(lessons)),
	}
	for _, l := range lessons {
		if l.ID != lc.Lesson.ID {
			h.previous = append(h.previous, l.ID)
		}
	}
	if len(h.previous) == 0 {
		return h, nil
	}

	presences, err := svc.repo.QueryPresences(ctx, h.previous...)
	if err != nil {
		return histories{}, errors.Wrap(err, "querying previous presences")
	}
	for _, p := range presences {
		if h.attended[p.LessonID] == nil {
			h.attended[p.LessonID] = make(map[string]bool)
		}
		h.attended[p.LessonID][p.UserID] = true
	}
	return h, nil
}

// of returns the presence history of the user, starting with the current lesson.
func (h histories) of(userID string, current bool) []bool {
	history := make([]bool, 0, len(h.previous)+1)
	history = append(history, current)
	for _, lessonID := range h.previous {
		history = append(history, h.attended[lessonID][userID])
	}
	return history
}
