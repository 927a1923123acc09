package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
)

const (
	courseColumns     = "id, name, description, owner_id, is_active, created_at, updated_at"
	yearColumns       = "id, course_id, name, start_date, end_date, is_active, created_at"
	enrollmentColumns = "user_id, academic_year_id, created_at"
	actionColumns     = "id, course_id, name, description, points, is_automatic, is_active, created_at"
	lessonColumns     = "id, academic_year_id, date, title, description, created_at"
)

type (
	courseRow struct {
		ID          string      `db:"id"`
		Name        string      `db:"name"`
		Description string      `db:"description"`
		OwnerID     null.String `db:"owner_id"`
		IsActive    bool        `db:"is_active"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	yearRow struct {
		ID        string    `db:"id"`
		CourseID  string    `db:"course_id"`
		Name      string    `db:"name"`
		StartDate time.Time `db:"start_date"`
		EndDate   null.Time `db:"end_date"`
		IsActive  bool      `db:"is_active"`
		CreatedAt time.Time `db:"created_at"`
	}

	enrollmentRow struct {
		UserID         string    `db:"user_id"`
		AcademicYearID string    `db:"academic_year_id"`
		CreatedAt      time.Time `db:"created_at"`
	}

	actionRow struct {
		ID          string    `db:"id"`
		CourseID    string    `db:"course_id"`
		Name        string    `db:"name"`
		Description string    `db:"description"`
		Points      float64   `db:"points"`
		IsAutomatic bool      `db:"is_automatic"`
		IsActive    bool      `db:"is_active"`
		CreatedAt   time.Time `db:"created_at"`
	}

	lessonRow struct {
		ID             string      `db:"id"`
		AcademicYearID string      `db:"academic_year_id"`
		Date           time.Time   `db:"date"`
		Title          null.String `db:"title"`
		Description    string      `db:"description"`
		CreatedAt      time.Time   `db:"created_at"`
	}
)

func (r courseRow) course() course.Course {
	return course.Course{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		OwnerID:     r.OwnerID.String,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r yearRow) year() course.AcademicYear {
	return course.AcademicYear{
		ID:        r.ID,
		CourseID:  r.CourseID,
		Name:      r.Name,
		StartDate: r.StartDate,
		EndDate:   r.EndDate.Ptr(),
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
	}
}

func (r actionRow) action() course.Action {
	return course.Action{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Name:        r.Name,
		Description: r.Description,
		Points:      r.Points,
		IsAutomatic: r.IsAutomatic,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
	}
}

func (r lessonRow) lesson() course.Lesson {
	return course.Lesson{
		ID:             r.ID,
		AcademicYearID: r.AcademicYearID,
		Date:           r.Date,
		Title:          r.Title.String,
		Description:    r.Description,
		CreatedAt:      r.CreatedAt,
	}
}

type courseRepository struct {
	store *Store
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(store *Store) course.Repository {
	return &courseRepository{store: store}
}

// Courses

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = uuid.New().String()
	err := repo.store.insert(ctx, `
		INSERT INTO courses (`+courseColumns+`)
		VALUES (:id, :name, :description, :owner_id, :is_active, :created_at, :updated_at)`,
		courseRow{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			OwnerID:     null.NewString(c.OwnerID, c.OwnerID != ""),
			IsActive:    c.IsActive,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		},
	)
	if err != nil {
		return course.Course{}, core.NewStorageError("inserting course", err)
	}
	return c, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var r courseRow
	if err := repo.store.get(ctx, &r, "SELECT "+courseColumns+" FROM courses WHERE id = ?", id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrCourseNotFound, "finding course")
	}
	return r.course(), nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.CourseFilter) ([]course.Course, error) {
	var w where
	if filter.OwnerID != "" {
		w.add("owner_id = ?", filter.OwnerID)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}

	var rows []courseRow
	if err := repo.store.selectIn(ctx, &rows, "SELECT "+courseColumns+" FROM courses"+w.String()+" ORDER BY LOWER(name)", w.args...); err != nil {
		return nil, core.NewStorageError("querying courses", err)
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	n, err := repo.store.exec(ctx,
		"UPDATE courses SET name = ?, description = ?, is_active = ?, updated_at = ? WHERE id = ?",
		c.Name, c.Description, c.IsActive, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return course.Course{}, core.NewStorageError("updating course", err)
	}
	if n == 0 {
		return course.Course{}, course.ErrCourseNotFound
	}
	return c, nil
}

// Academic years

func (repo *courseRepository) CreateYear(ctx context.Context, y course.AcademicYear) (course.AcademicYear, error) {
	y.ID = uuid.New().String()
	err := repo.store.insert(ctx, `
		INSERT INTO academic_years (`+yearColumns+`)
		VALUES (:id, :course_id, :name, :start_date, :end_date, :is_active, :created_at)`,
		yearRow{
			ID:        y.ID,
			CourseID:  y.CourseID,
			Name:      y.Name,
			StartDate: y.StartDate,
			EndDate:   null.TimeFromPtr(y.EndDate),
			IsActive:  y.IsActive,
			CreatedAt: y.CreatedAt,
		},
	)
	if err != nil {
		return course.AcademicYear{}, core.NewStorageError("inserting academic year", err)
	}
	return y, nil
}

func (repo *courseRepository) GetYear(ctx context.Context, id string) (course.AcademicYear, error) {
	var r yearRow
	if err := repo.store.get(ctx, &r, "SELECT "+yearColumns+" FROM academic_years WHERE id = ?", id); err != nil {
		return course.AcademicYear{}, trapNoRowsErr(err, course.ErrYearNotFound, "finding academic year")
	}
	return r.year(), nil
}

func (repo *courseRepository) QueryYears(ctx context.Context, filter course.YearFilter) ([]course.AcademicYear, error) {
	var w where
	if filter.CourseID != "" {
		w.add("course_id = ?", filter.CourseID)
	}
	if filter.Name != "" {
		w.add("LOWER(name) = LOWER(?)", filter.Name)
	}
	if filter.EnrolledUserID != "" {
		w.add("id IN (SELECT academic_year_id FROM enrollments WHERE user_id = ?)", filter.EnrolledUserID)
	}

	var rows []yearRow
	if err := repo.store.selectIn(ctx, &rows, "SELECT "+yearColumns+" FROM academic_years"+w.String()+" ORDER BY start_date DESC", w.args...); err != nil {
		return nil, core.NewStorageError("querying academic years", err)
	}
	years := make([]course.AcademicYear, 0, len(rows))
	for _, r := range rows {
		years = append(years, r.year())
	}
	return years, nil
}

func (repo *courseRepository) UpdateYear(ctx context.Context, y course.AcademicYear) (course.AcademicYear, error) {
	n, err := repo.store.exec(ctx,
		"UPDATE academic_years SET name = ?, start_date = ?, end_date = ?, is_active = ? WHERE id = ?",
		y.Name, y.StartDate, null.TimeFromPtr(y.EndDate), y.IsActive, y.ID,
	)
	if err != nil {
		return course.AcademicYear{}, core.NewStorageError("updating academic year", err)
	}
	if n == 0 {
		return course.AcademicYear{}, course.ErrYearNotFound
	}
	return y, nil
}

func (repo *courseRepository) DeactivateYears(ctx context.Context, courseID, exceptID string) error {
	_, err := repo.store.exec(ctx,
		"UPDATE academic_years SET is_active = FALSE WHERE course_id = ? AND id <> ?", courseID, exceptID)
	return core.NewStorageError("deactivating academic years", err)
}

// DeleteYear relies on the ON DELETE CASCADE of lessons, enrollments, presences and scores.
func (repo *courseRepository) DeleteYear(ctx context.Context, id string) error {
	n, err := repo.store.exec(ctx, "DELETE FROM academic_years WHERE id = ?", id)
	if err != nil {
		return core.NewStorageError("deleting academic year", err)
	}
	if n == 0 {
		return course.ErrYearNotFound
	}
	return nil
}

// Enrollments

func (repo *courseRepository) CreateEnrollment(ctx context.Context, e course.Enrollment) (course.Enrollment, error) {
	err := repo.store.insert(ctx,
		"INSERT INTO enrollments ("+enrollmentColumns+") VALUES (:user_id, :academic_year_id, :created_at)",
		enrollmentRow{UserID: e.UserID, AcademicYearID: e.AcademicYearID, CreatedAt: e.CreatedAt},
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return course.Enrollment{}, course.ErrAlreadyEnrolled
		}
		return course.Enrollment{}, core.NewStorageError("inserting enrollment", err)
	}
	return e, nil
}

func (repo *courseRepository) QueryEnrollments(ctx context.Context, academicYearID string) ([]course.Enrollment, error) {
	var rows []enrollmentRow
	err := repo.store.selectIn(ctx, &rows,
		"SELECT "+enrollmentColumns+" FROM enrollments WHERE academic_year_id = ? ORDER BY seq", academicYearID)
	if err != nil {
		return nil, core.NewStorageError("querying enrollments", err)
	}
	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, course.Enrollment{
			UserID:         r.UserID,
			AcademicYearID: r.AcademicYearID,
			CreatedAt:      r.CreatedAt,
		})
	}
	return enrollments, nil
}

func (repo *courseRepository) DeleteEnrollment(ctx context.Context, userID, academicYearID string) error {
	n, err := repo.store.exec(ctx,
		"DELETE FROM enrollments WHERE user_id = ? AND academic_year_id = ?", userID, academicYearID)
	if err != nil {
		return core.NewStorageError("deleting enrollment", err)
	}
	if n == 0 {
		return course.ErrEnrollmentNotFound
	}
	return nil
}

// Actions

func (repo *courseRepository) CreateAction(ctx context.Context, a course.Action) (course.Action, error) {
	a.ID = uuid.New().String()
	err := repo.store.insert(ctx, `
		INSERT INTO actions (`+actionColumns+`)
		VALUES (:id, :course_id, :name, :description, :points, :is_automatic, :is_active, :created_at)`,
		actionRow{
			ID:          a.ID,
			CourseID:    a.CourseID,
			Name:        a.Name,
			Description: a.Description,
			Points:      a.Points,
			IsAutomatic: a.IsAutomatic,
			IsActive:    a.IsActive,
			CreatedAt:   a.CreatedAt,
		},
	)
	if err != nil {
		return course.Action{}, core.NewStorageError("inserting action", err)
	}
	return a, nil
}

func (repo *courseRepository) GetAction(ctx context.Context, id string) (course.Action, error) {
	var r actionRow
	if err := repo.store.get(ctx, &r, "SELECT "+actionColumns+" FROM actions WHERE id = ?", id); err != nil {
		return course.Action{}, trapNoRowsErr(err, course.ErrActionNotFound, "finding action")
	}
	return r.action(), nil
}

func (repo *courseRepository) QueryActions(ctx context.Context, filter course.ActionFilter) ([]course.Action, error) {
	var w where
	if filter.CourseID != "" {
		w.add("course_id = ?", filter.CourseID)
	}
	if filter.Name != "" {
		w.add("LOWER(name) = LOWER(?)", filter.Name)
	}
	if filter.IsAutomatic != nil {
		w.add("is_automatic = ?", *filter.IsAutomatic)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return nil, nil
		}
		w.add("id IN (?)", filter.IDs)
	}

	var rows []actionRow
	if err := repo.store.selectIn(ctx, &rows, "SELECT "+actionColumns+" FROM actions"+w.String()+" ORDER BY name", w.args...); err != nil {
		return nil, core.NewStorageError("querying actions", err)
	}
	actions := make([]course.Action, 0, len(rows))
	for _, r := range rows {
		actions = append(actions, r.action())
	}
	return actions, nil
}

func (repo *courseRepository) UpdateAction(ctx context.Context, a course.Action) (course.Action, error) {
	n, err := repo.store.exec(ctx,
		"UPDATE actions SET name = ?, description = ?, points = ?, is_active = ? WHERE id = ?",
		a.Name, a.Description, a.Points, a.IsActive, a.ID,
	)
	if err != nil {
		return course.Action{}, core.NewStorageError("updating action", err)
	}
	if n == 0 {
		return course.Action{}, course.ErrActionNotFound
	}
	return a, nil
}

func (repo *courseRepository) DeleteAction(ctx context.Context, id string) error {
	n, err := repo.store.exec(ctx, "DELETE FROM actions WHERE id = ?", id)
	if err != nil {
		return core.NewStorageError("deleting action", err)
	}
	if n == 0 {
		return course.ErrActionNotFound
	}
	return nil
}

// Lessons

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	l.ID = uuid.New().String()
	err := repo.store.insert(ctx, `
		INSERT INTO lessons (`+lessonColumns+`)
		VALUES (:id, :academic_year_id, :date, :title, :description, :created_at)`,
		lessonRow{
			ID:             l.ID,
			AcademicYearID: l.AcademicYearID,
			Date:           l.Date,
			Title:          null.NewString(l.Title, l.Title != ""),
			Description:    l.Description,
			CreatedAt:      l.CreatedAt,
		},
	)
	if err != nil {
		return course.Lesson{}, core.NewStorageError("inserting lesson", err)
	}
	return l, nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	var r lessonRow
	if err := repo.store.get(ctx, &r, "SELECT "+lessonColumns+" FROM lessons WHERE id = ?", id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "finding lesson")
	}
	return r.lesson(), nil
}

func (repo *courseRepository) QueryLessons(ctx context.Context, filter course.LessonFilter) ([]course.Lesson, error) {
	var w where
	if filter.AcademicYearID != "" {
		w.add("academic_year_id = ?", filter.AcademicYearID)
	}
	if !filter.Until.IsZero() {
		w.add("date <= ?", filter.Until.UTC())
	}

	var rows []lessonRow
	if err := repo.store.selectIn(ctx, &rows, "SELECT "+lessonColumns+" FROM lessons"+w.String()+" ORDER BY date DESC, created_at DESC", w.args...); err != nil {
		return nil, core.NewStorageError("querying lessons", err)
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.lesson())
	}
	return lessons, nil
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, id string) error {
	n, err := repo.store.exec(ctx, "DELETE FROM lessons WHERE id = ?", id)
	if err != nil {
		return core.NewStorageError("deleting lesson", err)
	}
	if n == 0 {
		return course.ErrLessonNotFound
	}
	return nil
}

// Scores

func (repo *courseRepository) CountScores(ctx context.Context, filter course.ScoreCountFilter) (int, error) {
	var w where
	if filter.UserID != "" {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.ActionID != "" {
		w.add("action_id = ?", filter.ActionID)
	}
	if filter.AcademicYearID != "" {
		w.add("lesson_id IN (SELECT id FROM lessons WHERE academic_year_id = ?)", filter.AcademicYearID)
	}

	var n int
	if err := repo.store.get(ctx, &n, "SELECT COUNT(*) FROM scores"+w.String(), w.args...); err != nil {
		return 0, core.NewStorageError("counting scores", err)
	}
	return n, nil
}
