package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/fantakombat/backend/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

// Courses

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	defer repo.db.write(ctx)()

	c.ID = newID()
	repo.db.courses = append(repo.db.courses, c)
	return c, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	defer repo.db.read(ctx)()

	for _, c := range repo.db.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return course.Course{}, course.ErrCourseNotFound
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.CourseFilter) ([]course.Course, error) {
	defer repo.db.read(ctx)()

	var courses []course.Course
	for _, c := range repo.db.courses {
		if filter.OwnerID != "" && c.OwnerID != filter.OwnerID {
			continue
		}
		if filter.IsActive != nil && c.IsActive != *filter.IsActive {
			continue
		}
		courses = append(courses, c)
	}
	sort.SliceStable(courses, func(i, j int) bool {
		return strings.ToLower(courses[i].Name) < strings.ToLower(courses[j].Name)
	})
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	defer repo.db.write(ctx)()

	for i := range repo.db.courses {
		if repo.db.courses[i].ID == c.ID {
			repo.db.courses[i] = c
			return c, nil
		}
	}
	return course.Course{}, course.ErrCourseNotFound
}

// Academic years

func (repo *courseRepository) CreateYear(ctx context.Context, y course.AcademicYear) (course.AcademicYear, error) {
	defer repo.db.write(ctx)()

	y.ID = newID()
	repo.db.years = append(repo.db.years, y)
	return y, nil
}

func (repo *courseRepository) GetYear(ctx context.Context, id string) (course.AcademicYear, error) {
	defer repo.db.read(ctx)()

	for _, y := range repo.db.years {
		if y.ID == id {
			return y, nil
		}
	}
	return course.AcademicYear{}, course.ErrYearNotFound
}

func (repo *courseRepository) QueryYears(ctx context.Context, filter course.YearFilter) ([]course.AcademicYear, error) {
	defer repo.db.read(ctx)()

	var years []course.AcademicYear
	for _, y := range repo.db.years {
		if filter.CourseID != "" && y.CourseID != filter.CourseID {
			continue
		}
		if filter.Name != "" && !strings.EqualFold(y.Name, filter.Name) {
			continue
		}
		if filter.EnrolledUserID != "" && !repo.isEnrolled(filter.EnrolledUserID, y.ID) {
			continue
		}
		years = append(years, y)
	}
	sort.SliceStable(years, func(i, j int) bool { return years[i].StartDate.After(years[j].StartDate) })
	return years, nil
}

func (repo *courseRepository) isEnrolled(userID, yearID string) bool {
	for _, e := range repo.db.enrollments {
		if e.UserID == userID && e.AcademicYearID == yearID {
			return true
		}
	}
	return false
}

func (repo *courseRepository) UpdateYear(ctx context.Context, y course.AcademicYear) (course.AcademicYear, error) {
	defer repo.db.write(ctx)()

	for i := range repo.db.years {
		if repo.db.years[i].ID == y.ID {
			repo.db.years[i] = y
			return y, nil
		}
	}
	return course.AcademicYear{}, course.ErrYearNotFound
}

func (repo *courseRepository) DeactivateYears(ctx context.Context, courseID, exceptID string) error {
	defer repo.db.write(ctx)()

	for i := range repo.db.years {
		if y := &repo.db.years[i]; y.CourseID == courseID && y.ID != exceptID {
			y.IsActive = false
		}
	}
	return nil
}

func (repo *courseRepository) DeleteYear(ctx context.Context, id string) error {
	defer repo.db.write(ctx)()

	t := &repo.db.tables
	var lessonIDs []string
	lessons := t.lessons[:0]
	for _, l := range t.lessons {
		if l.AcademicYearID == id {
			lessonIDs = append(lessonIDs, l.ID)
			continue
		}
		lessons = append(lessons, l)
	}
	t.lessons = lessons
	repo.deleteLessonRecords(lessonIDs)

	enrollments := t.enrollments[:0]
	for _, e := range t.enrollments {
		if e.AcademicYearID != id {
			enrollments = append(enrollments, e)
		}
	}
	t.enrollments = enrollments

	years := t.years[:0]
	var found bool
	for _, y := range t.years {
		if y.ID == id {
			found = true
			continue
		}
		years = append(years, y)
	}
	t.years = years
	if !found {
		return course.ErrYearNotFound
	}
	return nil
}

// deleteLessonRecords deletes the presences and scores of the lessons. Callers hold the write lock.
func (repo *courseRepository) deleteLessonRecords(lessonIDs []string) {
	if len(lessonIDs) == 0 {
		return
	}
	t := &repo.db.tables
	presences := t.presences[:0]
	for _, p := range t.presences {
		if !contains(lessonIDs, p.LessonID) {
			presences = append(presences, p)
		}
	}
	t.presences = presences

	scores := t.scores[:0]
	for _, s := range t.scores {
		if !contains(lessonIDs, s.LessonID) {
			scores = append(scores, s)
		}
	}
	t.scores = scores
}

// Enrollments

func (repo *courseRepository) CreateEnrollment(ctx context.Context, e course.Enrollment) (course.Enrollment, error) {
	defer repo.db.write(ctx)()

	if repo.isEnrolled(e.UserID, e.AcademicYearID) {
		return course.Enrollment{}, course.ErrAlreadyEnrolled
	}
	repo.db.enrollments = append(repo.db.enrollments, e)
	return e, nil
}

func (repo *courseRepository) QueryEnrollments(ctx context.Context, academicYearID string) ([]course.Enrollment, error) {
	defer repo.db.read(ctx)()

	var enrollments []course.Enrollment
	for _, e := range repo.db.enrollments {
		if e.AcademicYearID == academicYearID {
			enrollments = append(enrollments, e)
		}
	}
	return enrollments, nil
}

func (repo *courseRepository) DeleteEnrollment(ctx context.Context, userID, academicYearID string) error {
	defer repo.db.write(ctx)()

	for i, e := range repo.db.enrollments {
		if e.UserID == userID && e.AcademicYearID == academicYearID {
			repo.db.enrollments = append(repo.db.enrollments[:i], repo.db.enrollments[i+1:]...)
			return nil
		}
	}
	return course.ErrEnrollmentNotFound
}

// Actions

func (repo *courseRepository) CreateAction(ctx context.Context, a course.Action) (course.Action, error) {
	defer repo.db.write(ctx)()

	a.ID = newID()
	repo.db.actions = append(repo.db.actions, a)
	return a, nil
}

func (repo *courseRepository) GetAction(ctx context.Context, id string) (course.Action, error) {
	defer repo.db.read(ctx)()

	for _, a := range repo.db.actions {
		if a.ID == id {
			return a, nil
		}
	}
	return course.Action{}, course.ErrActionNotFound
}

func (repo *courseRepository) QueryActions(ctx context.Context, filter course.ActionFilter) ([]course.Action, error) {
	defer repo.db.read(ctx)()

	var actions []course.Action
	for _, a := range repo.db.actions {
		if filter.CourseID != "" && a.CourseID != filter.CourseID {
			continue
		}
		if filter.Name != "" && !strings.EqualFold(a.Name, filter.Name) {
			continue
		}
		if filter.IsAutomatic != nil && a.IsAutomatic != *filter.IsAutomatic {
			continue
		}
		if filter.IDs != nil && !contains(filter.IDs, a.ID) {
			continue
		}
		actions = append(actions, a)
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })
	return actions, nil
}

func (repo *courseRepository) UpdateAction(ctx context.Context, a course.Action) (course.Action, error) {
	defer repo.db.write(ctx)()

	for i := range repo.db.actions {
		if repo.db.actions[i].ID == a.ID {
			repo.db.actions[i] = a
			return a, nil
		}
	}
	return course.Action{}, course.ErrActionNotFound
}

func (repo *courseRepository) DeleteAction(ctx context.Context, id string) error {
	defer repo.db.write(ctx)()

	for i, a := range repo.db.actions {
		if a.ID == id {
			repo.db.actions = append(repo.db.actions[:i], repo.db.actions[i+1:]...)
			return nil
		}
	}
	return course.ErrActionNotFound
}

// Lessons

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	defer repo.db.write(ctx)()

	l.ID = newID()
	repo.db.lessons = append(repo.db.lessons, l)
	return l, nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	defer repo.db.read(ctx)()

	for _, l := range repo.db.lessons {
		if l.ID == id {
			return l, nil
		}
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) QueryLessons(ctx context.Context, filter course.LessonFilter) ([]course.Lesson, error) {
	defer repo.db.read(ctx)()

	var lessons []course.Lesson
	for _, l := range repo.db.lessons {
		if filter.AcademicYearID != "" && l.AcademicYearID != filter.AcademicYearID {
			continue
		}
		if !filter.Until.IsZero() && l.Date.After(filter.Until) {
			continue
		}
		lessons = append(lessons, l)
	}
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Date.After(lessons[j].Date) })
	return lessons, nil
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, id string) error {
	defer repo.db.write(ctx)()

	for i, l := range repo.db.lessons {
		if l.ID == id {
			repo.db.lessons = append(repo.db.lessons[:i], repo.db.lessons[i+1:]...)
			repo.deleteLessonRecords([]string{id})
			return nil
		}
	}
	return course.ErrLessonNotFound
}

// Scores

func (repo *courseRepository) CountScores(ctx context.Context, filter course.ScoreCountFilter) (int, error) {
	defer repo.db.read(ctx)()

	var yearLessons []string
	if filter.AcademicYearID != "" {
		for _, l := range repo.db.lessons {
			if l.AcademicYearID == filter.AcademicYearID {
				yearLessons = append(yearLessons, l.ID)
			}
		}
	}

	var n int
	for _, s := range repo.db.scores {
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		if filter.ActionID != "" && s.ActionID != filter.ActionID {
			continue
		}
		if filter.AcademicYearID != "" && !contains(yearLessons, s.LessonID) {
			continue
		}
		n++
	}
	return n, nil
}
