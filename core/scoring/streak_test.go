package scoring

import (
	"testing"
)

// history builds a presence history, most recent first: n times current, then the break value.
func history(current bool, n int, withBreak bool) []bool {
	h := make([]bool, 0, n+1)
	for i := 0; i < n; i++ {
		h = append(h, current)
	}
	if withBreak {
		h = append(h, !current)
	}
	return h
}

func TestCalculateStreak_cadence(t *testing.T) {
	for n := 1; n <= 16; n++ {
		for _, present := range []bool{true, false} {
			got := CalculateStreak(history(present, n, true))
			want := n >= 3 && n%3 == 0
			if (got != nil) != want {
				t.Errorf("CalculateStreak(n=%d, present=%v) = %+v, want streak %v", n, present, got, want)
			}
			if got != nil && (got.Length != n || got.Present != present || got.Level != n/3) {
				t.Errorf("CalculateStreak(n=%d, present=%v) = %+v", n, present, got)
			}
		}
	}
}

func TestCalculateStreak_points(t *testing.T) {
	tests := []struct {
		name    string
		present bool
		length  int
		want    float64
	}{
		{name: "bonus 3", present: true, length: 3, want: 0.5},
		{name: "bonus 6", present: true, length: 6, want: 1.0},
		{name: "bonus 9", present: true, length: 9, want: 1.5},
		{name: "bonus 12", present: true, length: 12, want: 2.0},
		{name: "bonus 15 (uncapped)", present: true, length: 15, want: 2.5},
		{name: "bonus 30 (uncapped)", present: true, length: 30, want: 5.0},
		{name: "malus 3", present: false, length: 3, want: -0.5},
		{name: "malus 6", present: false, length: 6, want: -1.0},
		{name: "malus 9", present: false, length: 9, want: -1.5},
		{name: "malus 12", present: false, length: 12, want: -2.0},
		{name: "malus 15 (capped)", present: false, length: 15, want: -2.0},
		{name: "malus 30 (capped)", present: false, length: 30, want: -2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateStreak(history(tt.present, tt.length, false))
			if got == nil {
				t.Fatal("CalculateStreak() = nil")
			}
			if got.Points != tt.want {
				t.Errorf("CalculateStreak().Points = %v, want %v", got.Points, tt.want)
			}
		})
	}
}

func TestCalculateStreak_edgeCases(t *testing.T) {
	tests := []struct {
		name    string
		history []bool
		want    *Streak
	}{
		{name: "empty history", history: nil},
		{name: "first lesson", history: []bool{false}},
		{name: "break stops the walk", history: []bool{true, true, false, true, true, true}},
		{name: "break right before", history: []bool{true, false, true, true}},
		{name: "older lessons ignored after break", history: []bool{false, false, false, true, false, false, false}, want: &Streak{
			Present: false, Length: 3, Level: 1, Points: -0.5,
		}},
		{name: "whole history", history: []bool{true, true, true, true, true, true}, want: &Streak{
			Present: true, Length: 6, Level: 2, Points: 1.0,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateStreak(tt.history)
			if tt.want == nil {
				if got != nil {
					t.Errorf("CalculateStreak() = %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("CalculateStreak() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStreak_Message(t *testing.T) {
	tests := []struct {
		streak Streak
		want   string
	}{
		{Streak{Present: true, Length: 3, Level: 1, Points: 0.5}, "✨ Anna: 3 presenze consecutive (+0.5)"},
		{Streak{Present: true, Length: 6, Level: 2, Points: 1}, "🔥 Anna: 6 presenze consecutive (+1)"},
		{Streak{Present: true, Length: 9, Level: 3, Points: 1.5}, "🔥🔥 Anna: 9 presenze consecutive (+1.5)"},
		{Streak{Present: true, Length: 12, Level: 4, Points: 2}, "🏆 Anna: 12 presenze consecutive (+2)"},
		{Streak{Present: true, Length: 18, Level: 6, Points: 3}, "🏆 Anna: 18 presenze consecutive (+3)"},
		{Streak{Present: false, Length: 3, Level: 1, Points: -0.5}, "⚠️ Anna: 3 assenze consecutive (-0.5)"},
		{Streak{Present: false, Length: 6, Level: 2, Points: -1}, "⚠️🔴 Anna: 6 assenze consecutive (-1)"},
		{Streak{Present: false, Length: 9, Level: 3, Points: -1.5}, "⚠️⚠️ Anna: 9 assenze consecutive (-1.5)"},
		{Streak{Present: false, Length: 15, Level: 5, Points: -2}, "🚨 Anna: 15 assenze consecutive (-2)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.streak.Message("Anna"); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttendanceSummary_Message(t *testing.T) {
	tests := []struct {
		name    string
		summary AttendanceSummary
		want    string
	}{
		{name: "none present", summary: AttendanceSummary{}, want: "Presenze salvate: 0 allievi presenti"},
		{name: "one present", summary: AttendanceSummary{PresentCount: 1}, want: "Presenze salvate: 1 allievo presente"},
		{
			name: "with streaks",
			summary: AttendanceSummary{
				PresentCount:  2,
				BonusMessages: []string{"✨ Anna: 3 presenze consecutive (+0.5)"},
				MalusMessages: []string{"⚠️ Bea: 3 assenze consecutive (-0.5)"},
			},
			want: "Presenze salvate: 2 allievi presenti\n\nBonus/Malus assegnati:\n" +
				"✨ Anna: 3 presenze consecutive (+0.5)\n⚠️ Bea: 3 assenze consecutive (-0.5)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.summary.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}
