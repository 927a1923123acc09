package course

import (
	"encoding/json"
	"time"

	"github.com/fantakombat/backend/core"
)

// Automatic actions
const (
	ActionPresence       = "Presenza"
	ActionAbsence        = "Assenza"
	ActionPresenceStreak = "Bonus Presenze Consecutive"
	ActionAbsenceStreak  = "Malus Assenze Consecutive"
)

var AutomaticActionNames = []string{ActionPresence, ActionAbsence, ActionPresenceStreak, ActionAbsenceStreak}

type ActionType string

const (
	ActionTypeBonus ActionType = "BONUS"
	ActionTypeMalus ActionType = "MALUS"
)

type (
	Course struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		OwnerID     string    `json:"ownerId"`
		IsActive    bool      `json:"isActive"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	AcademicYear struct {
		ID        string     `json:"id"`
		CourseID  string     `json:"courseId"`
		Name      string     `json:"name"`
		StartDate time.Time  `json:"startDate"`
		EndDate   *time.Time `json:"endDate"`
		IsActive  bool       `json:"isActive"`
		CreatedAt time.Time  `json:"createdAt"`
	}

	Enrollment struct {
		UserID         string    `json:"userId"`
		AcademicYearID string    `json:"academicYearId"`
		CreatedAt      time.Time `json:"createdAt"`
	}

	Action struct {
		ID          string    `json:"id"`
		CourseID    string    `json:"courseId"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Points      float64   `json:"points"`
		IsAutomatic bool      `json:"isAutomatic"`
		IsActive    bool      `json:"isActive"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	Lesson struct {
		ID             string    `json:"id"`
		AcademicYearID string    `json:"academicYearId"`
		Date           time.Time `json:"date"`
		Title          string    `json:"title"`
		Description    string    `json:"description"`
		CreatedAt      time.Time `json:"createdAt"`
	}

	// LessonContext is a Lesson resolved with its AcademicYear and Course.
	LessonContext struct {
		Lesson Lesson
		Year   AcademicYear
		Course Course
	}
)

func (a Action) IsBonus() bool { return a.Points > 0 }

func (a Action) Type() ActionType {
	if a.IsBonus() {
		return ActionTypeBonus
	}
	return ActionTypeMalus
}

func (a Action) MarshalJSON() ([]byte, error) {
	type action Action
	return json.Marshal(struct {
		action
		Type ActionType `json:"type"`
	}{action(a), a.Type()})
}

// DefaultAutomaticActions returns the automatic actions provisioned for every course.
func DefaultAutomaticActions(conf core.ScoringConfig) []Action {
	return []Action{
		{
			Name:        ActionPresence,
			Description: "Punto presenza alla lezione (automatico)",
			Points:      conf.PresencePoints,
		},
		{
			Name:        ActionAbsence,
			Description: "Penalità per assenza alla lezione (automatico)",
			Points:      conf.AbsencePoints,
		},
		{
			Name:        ActionPresenceStreak,
			Description: "Bonus per presenze consecutive: +0.5 ogni 3 lezioni consecutive (automatico)",
			Points:      conf.PresenceStreakPoints,
		},
		{
			Name:        ActionAbsenceStreak,
			Description: "Malus per assenze consecutive: -0.5 ogni 3 lezioni consecutive, massimo -2 (automatico)",
			Points:      conf.AbsenceStreakPoints,
		},
	}
}

func IsAutomaticActionName(name string) bool {
	for _, n := range AutomaticActionNames {
		if n == name {
			return true
		}
	}
	return false
}

// Inputs

type NewCourse struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (nc *NewCourse) Clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
}

type UpdateCourse struct {
	Name        string `json:"name" validate:"omitempty,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsActive    *bool  `json:"isActive"`
}

type NewAcademicYear struct {
	Name      string     `json:"name" validate:"required,notblank,max=100"`
	StartDate time.Time  `json:"startDate" validate:"required"`
	EndDate   *time.Time `json:"endDate" validate:"omitempty,gtfield=StartDate"`
}

func (ny *NewAcademicYear) Clean() {
	ny.Name = core.CleanString(ny.Name)
}

type NewAction struct {
	Name        string  `json:"name" validate:"required,notblank,max=100"`
	Description string  `json:"description" validate:"max=500"`
	Points      float64 `json:"points" validate:"ne=0"`
}

func (na *NewAction) Clean() {
	na.Name = core.CleanString(na.Name)
	na.Description = core.CleanString(na.Description)
}

// UpdateAction holds the editable fields of an Action. Automatic actions cannot be renamed.
type UpdateAction struct {
	Name        string   `json:"name" validate:"omitempty,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Points      *float64 `json:"points" validate:"omitempty,ne=0"`
	IsActive    *bool    `json:"isActive"`
}

type NewLesson struct {
	Date        time.Time `json:"date" validate:"required"`
	Title       string    `json:"title" validate:"max=200"`
	Description string    `json:"description" validate:"max=1000"`
}

func (nl *NewLesson) Clean() {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
}

// Filters

type CourseFilter struct {
	OwnerID  string
	IsActive *bool
}

type YearFilter struct {
	CourseID string
	Name     string
	// EnrolledUserID limits the years to those the User is enrolled in.
	EnrolledUserID string
}

type ActionFilter struct {
	CourseID    string
	Name        string
	IsAutomatic *bool
	IDs         []string
}

type LessonFilter struct {
	AcademicYearID string
	// Until limits the lessons to those dated on or before it.
	Until time.Time
}

type ScoreCountFilter struct {
	UserID         string
	AcademicYearID string
	ActionID       string
}
