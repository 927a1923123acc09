package scoring

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fantakombat/backend/core"
)

var ErrScoreNotFound = core.NewNotFoundError("score")

type (
	// Presence marks that a User attended a Lesson.
	Presence struct {
		UserID    string    `json:"userId"`
		LessonID  string    `json:"lessonId"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// Score is a ledger entry: points granted to a User for an Action at a Lesson.
	// Points are captured at assignment time.
	Score struct {
		ID         string    `json:"id"`
		UserID     string    `json:"userId"`
		LessonID   string    `json:"lessonId"`
		ActionID   string    `json:"actionId"`
		Points     float64   `json:"points"`
		AssignedBy string    `json:"assignedBy"`
		Notes      string    `json:"notes"`
		CreatedAt  time.Time `json:"createdAt"`
	}

	// ScoreFilter applies AND operation on its non-empty fields.
	ScoreFilter struct {
		UserID         string
		LessonID       string
		AcademicYearID string
		ActionIDs      []string
	}

	Repository interface {
		// QueryPresences returns the presences recorded at any of the lessons.
		QueryPresences(ctx context.Context, lessonIDs ...string) ([]Presence, error)
		CreatePresences(ctx context.Context, presences ...Presence) error
		DeletePresences(ctx context.Context, lessonID string) error

		// QueryScores returns the matching scores in creation order.
		QueryScores(ctx context.Context, filter ScoreFilter) ([]Score, error)
		GetScore(ctx context.Context, id string) (Score, error)
		CreateScores(ctx context.Context, scores ...Score) ([]Score, error)
		// DeleteScores deletes the matching scores. An empty filter deletes nothing.
		DeleteScores(ctx context.Context, filter ScoreFilter) (int, error)
		DeleteScore(ctx context.Context, id string) error
	}
)

func (f ScoreFilter) IsEmpty() bool {
	return f.UserID == "" && f.LessonID == "" && f.AcademicYearID == "" && len(f.ActionIDs) == 0
}

// RankedEntry is one line of a leaderboard.
type RankedEntry struct {
	UserID       string  `json:"userId"`
	UserName     string  `json:"userName"`
	UserEmail    string  `json:"userEmail"`
	TotalPoints  float64 `json:"totalPoints"`
	BonusPoints  float64 `json:"bonusPoints"`
	MalusPoints  float64 `json:"malusPoints"`
	TotalLessons int     `json:"totalLessons"`
	ScoresCount  int     `json:"scoresCount"`
	Position     int     `json:"position"`
}

// AttendanceSummary reports what an attendance submission did.
type AttendanceSummary struct {
	PresentCount  int      `json:"presentCount"`
	BonusMessages []string `json:"bonusMessages"`
	MalusMessages []string `json:"malusMessages"`
	// Warnings lists the automatic actions missing from the course.
	Warnings []string `json:"warnings"`
}

// Message renders the summary shown to the teacher.
func (s AttendanceSummary) Message() string {
	var b strings.Builder
	b.WriteString("Presenze salvate: ")
	b.WriteString(strconv.Itoa(s.PresentCount))
	if s.PresentCount == 1 {
		b.WriteString(" allievo presente")
	} else {
		b.WriteString(" allievi presenti")
	}

	messages := make([]string, 0, len(s.BonusMessages)+len(s.MalusMessages))
	messages = append(messages, s.BonusMessages...)
	messages = append(messages, s.MalusMessages...)
	if len(messages) > 0 {
		b.WriteString("\n\nBonus/Malus assegnati:\n")
		b.WriteString(strings.Join(messages, "\n"))
	}
	if len(s.Warnings) > 0 {
		b.WriteString("\n\nAttenzione:\n")
		b.WriteString(strings.Join(s.Warnings, "\n"))
	}
	return b.String()
}

// ScoreEntry is a Score resolved for display in a score history.
type ScoreEntry struct {
	Score
	ActionName   string    `json:"actionName"`
	LessonDate   time.Time `json:"lessonDate"`
	LessonTitle  string    `json:"lessonTitle"`
	RunningTotal float64   `json:"runningTotal"`
}

type ScoreHistory struct {
	Entries     []ScoreEntry `json:"entries"`
	TotalPoints float64      `json:"totalPoints"`
}

// Assignment is a manual grant of one or more actions to a User at a Lesson.
type Assignment struct {
	UserID    string   `json:"userId" validate:"required"`
	ActionIDs []string `json:"actionIds" validate:"required,min=1,dive,required"`
	Notes     string   `json:"notes" validate:"max=500"`
}

type AssignmentResult struct {
	Scores  []Score `json:"scores"`
	Total   float64 `json:"total"`
	Message string  `json:"message"`
}

// formatPoints renders points with the shortest exact representation, e.g. 1, 0.5, -1.5.
func formatPoints(points float64) string {
	return strconv.FormatFloat(points, 'f', -1, 64)
}

func signedPoints(points float64) string {
	if points > 0 {
		return "+" + formatPoints(points)
	}
	return formatPoints(points)
}

func missingActionWarning(name string) string {
	return fmt.Sprintf("%s: azione automatica %q non trovata", core.ErrConfigurationMissing, name)
}
