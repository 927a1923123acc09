package scoring

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/user"
)

// Rank reduces scores into the leaderboard of students.
// Every student starts at zero; scores of users outside students are ignored.
// Entries are sorted by total points, descending; ties keep the order of students.
func Rank(students []user.User, scores []Score) []RankedEntry {
	entries := make([]RankedEntry, 0, len(students))
	index := make(map[string]int, len(students))
	lessons := make(map[string]map[string]struct{}, len(students))
	for _, st := range students {
		if _, ok := index[st.ID]; ok {
			continue
		}
		index[st.ID] = len(entries)
		lessons[st.ID] = make(map[string]struct{})
		entries = append(entries, RankedEntry{UserID: st.ID, UserName: st.Name, UserEmail: st.Email})
	}

	for _, sc := range scores {
		i, ok := index[sc.UserID]
		if !ok {
			continue
		}
		e := &entries[i]
		e.TotalPoints += sc.Points
		if sc.Points > 0 {
			e.BonusPoints += sc.Points
		} else {
			e.MalusPoints -= sc.Points
		}
		e.ScoresCount++
		lessons[sc.UserID][sc.LessonID] = struct{}{}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TotalPoints > entries[j].TotalPoints })
	for i := range entries {
		entries[i].TotalLessons = len(lessons[entries[i].UserID])
		entries[i].Position = i + 1
	}
	return entries
}

// ComputeRankings builds the leaderboard of an academic year, or the global one when academicYearID is empty.
// Results are served from the ranking cache when available.
func (svc *Service) ComputeRankings(ctx context.Context, academicYearID string) ([]RankedEntry, error) {
	key := academicYearID
	if key == "" {
		key = GlobalRankingKey
	}
	if entries, found, err := svc.cache.Get(ctx, key); err != nil {
		svc.logger.Warn(fmt.Sprintf("reading cached rankings of %q", key), err)
	} else if found {
		return entries, nil
	}
	generation := svc.generation.Load()

	var students []user.User
	var err error
	if academicYearID != "" {
		if _, err = svc.courses.GetYear(ctx, academicYearID); err != nil {
			return nil, errors.Wrap(err, "finding academic year")
		}
		students, err = course.EnrolledStudents(ctx, svc.courses, svc.users, academicYearID)
	} else {
		students, err = svc.users.FilterUsers(ctx, user.QueryFilter{Roles: []string{user.RoleStudent}})
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	scores, err := svc.repo.QueryScores(ctx, ScoreFilter{AcademicYearID: academicYearID})
	if err != nil {
		return nil, errors.Wrap(err, "querying scores")
	}

	entries := Rank(students, scores)
	if svc.generation.Load() != generation {
		// the data changed while ranking
		return entries, nil
	}
	if err = svc.cache.Set(ctx, key, entries); err != nil {
		svc.logger.Warn(fmt.Sprintf("caching rankings of %q", key), err)
	}
	return entries, nil
}

// StudentRankings is the leaderboard view of a student.
type StudentRankings struct {
	Years        []course.AcademicYear `json:"years"`
	SelectedYear *course.AcademicYear  `json:"selectedYear"`
	Rankings     []RankedEntry         `json:"rankings"`
	Position     int                   `json:"position"`
}

// RankingsFor returns the rankings of a year the student is enrolled in, with their own position.
// Without academicYearID the active year is selected, else the most recent one.
func (svc *Service) RankingsFor(ctx context.Context, student user.User, academicYearID string) (StudentRankings, error) {
	years, err := svc.courses.QueryYears(ctx, course.YearFilter{EnrolledUserID: student.ID})
	if err != nil {
		return StudentRankings{}, errors.Wrap(err, "querying enrolled years")
	}
	res := StudentRankings{Years: years, Rankings: []RankedEntry{}}
	if len(years) == 0 {
		return res, nil
	}

	var selected *course.AcademicYear
	for i := range years {
		y := &years[i]
		if (academicYearID != "" && y.ID == academicYearID) || (academicYearID == "" && y.IsActive) {
			selected = y
			break
		}
	}
	if selected == nil {
		if academicYearID != "" {
			return StudentRankings{}, course.ErrYearNotFound
		}
		selected = &years[0]
	}
	res.SelectedYear = selected

	if res.Rankings, err = svc.ComputeRankings(ctx, selected.ID); err != nil {
		return StudentRankings{}, err
	}
	for _, e := range res.Rankings {
		if e.UserID == student.ID {
			res.Position = e.Position
			break
		}
	}
	return res, nil
}
