package scoring

import (
	"fmt"
	"math"
)

const (
	// StreakCadence is the number of consecutive lessons that makes a streak level.
	StreakCadence = 3

	streakStepPoints = 0.5
	maxMalusPoints   = -2.0
)

// Streak is a run of consecutive lessons with the same presence value, ending at the current lesson,
// whose length just reached a multiple of StreakCadence.
type Streak struct {
	Present bool    `json:"present"`
	Length  int     `json:"length"`
	Level   int     `json:"level"`
	Points  float64 `json:"points"`
}

// CalculateStreak evaluates a presence history, most recent lesson first.
// history[0] is the presence flag of the current lesson.
// It returns nil when no bonus or malus is due at the current lesson.
func CalculateStreak(history []bool) *Streak {
	if len(history) == 0 {
		return nil
	}

	present := history[0]
	length := 1
	for _, p := range history[1:] {
		if p != present {
			break
		}
		length++
	}
	if length < StreakCadence || length%StreakCadence != 0 {
		return nil
	}

	level := length / StreakCadence
	points := float64(level) * streakStepPoints
	if !present {
		points = math.Max(maxMalusPoints, -points)
	}
	return &Streak{Present: present, Length: length, Level: level, Points: points}
}

// Emoji tags the streak with an emphasis growing with its length.
func (s Streak) Emoji() string {
	if s.Present {
		switch {
		case s.Length >= 12:
			return "🏆"
		case s.Length >= 9:
			return "🔥🔥"
		case s.Length >= 6:
			return "🔥"
		default:
			return "✨"
		}
	}
	switch {
	case s.Length >= 12:
		return "🚨"
	case s.Length >= 9:
		return "⚠️⚠️"
	case s.Length >= 6:
		return "⚠️🔴"
	default:
		return "⚠️"
	}
}

// Note is recorded on the streak Score.
func (s Streak) Note() string {
	if s.Present {
		return fmt.Sprintf("%d presenze consecutive", s.Length)
	}
	return fmt.Sprintf("%d assenze consecutive", s.Length)
}

// Message describes the streak of the named student, e.g. "🔥 Anna: 6 presenze consecutive (+1)".
func (s Streak) Message(name string) string {
	pts := formatPoints(s.Points)
	if s.Present {
		pts = "+" + pts
	}
	return fmt.Sprintf("%s %s: %s (%s)", s.Emoji(), name, s.Note(), pts)
}
