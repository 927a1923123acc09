package course

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/user"
)

var (
	// errors
	ErrCourseNotFound     = core.NewNotFoundError("course")
	ErrYearNotFound       = core.NewNotFoundError("academic year")
	ErrActionNotFound     = core.NewNotFoundError("action")
	ErrLessonNotFound     = core.NewNotFoundError("lesson")
	ErrEnrollmentNotFound = core.NewNotFoundError("enrollment")

	ErrYearNameExists      = errors.New("an academic year with this name already exists for this course")
	ErrActionNameExists    = errors.New("an action with this name already exists for this course")
	ErrAutomaticActionName = errors.New("this name is reserved for automatic actions")
	ErrAutomaticAction     = errors.New("automatic actions cannot be deleted")
	ErrAutomaticRename     = errors.New("automatic actions cannot be renamed")
	ErrActionInUse         = errors.New("this action is used by existing scores")
	ErrAlreadyEnrolled     = errors.New("student already enrolled in this academic year")
	ErrNotAStudent         = errors.New("only students can be enrolled")
	ErrEnrollmentHasScores = errors.New("cannot unenroll a student who has scores in this academic year")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)

		CreateYear(ctx context.Context, y AcademicYear) (AcademicYear, error)
		GetYear(ctx context.Context, id string) (AcademicYear, error)
		// QueryYears returns the years sorted by start date, most recent first.
		QueryYears(ctx context.Context, filter YearFilter) ([]AcademicYear, error)
		UpdateYear(ctx context.Context, y AcademicYear) (AcademicYear, error)
		// DeactivateYears deactivates every year of the course except exceptID.
		DeactivateYears(ctx context.Context, courseID, exceptID string) error
		// DeleteYear deletes the year with its lessons, enrollments, presences and scores.
		DeleteYear(ctx context.Context, id string) error

		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		// QueryEnrollments returns the enrollments of the year in enrollment order.
		QueryEnrollments(ctx context.Context, academicYearID string) ([]Enrollment, error)
		DeleteEnrollment(ctx context.Context, userID, academicYearID string) error

		CreateAction(ctx context.Context, a Action) (Action, error)
		GetAction(ctx context.Context, id string) (Action, error)
		// QueryActions returns the actions sorted by name.
		QueryActions(ctx context.Context, filter ActionFilter) ([]Action, error)
		UpdateAction(ctx context.Context, a Action) (Action, error)
		DeleteAction(ctx context.Context, id string) error

		CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		// QueryLessons returns the lessons sorted by date, most recent first.
		QueryLessons(ctx context.Context, filter LessonFilter) ([]Lesson, error)
		// DeleteLesson deletes the lesson with its presences and scores.
		DeleteLesson(ctx context.Context, id string) error

		CountScores(ctx context.Context, filter ScoreCountFilter) (int, error)
	}

	Service struct {
		repo     Repository
		usrRepo  user.Repository
		tx       core.Transactor
		validate *validator.Validate
		scoring  core.ScoringConfig
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	usrRepo user.Repository,
	tx core.Transactor,
	validate *validator.Validate,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		usrRepo:  usrRepo,
		tx:       tx,
		validate: validate,
		scoring:  conf.Scoring,
		logger:   logger,
	}
}

func validationErr(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// Courses

// CreateCourse creates a Course owned by owner, together with its automatic actions.
func (svc *Service) CreateCourse(ctx context.Context, owner user.User, nc NewCourse) (Course, error) {
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	crs := Course{
		Name:        nc.Name,
		Description: nc.Description,
		OwnerID:     owner.ID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if crs, err = svc.repo.CreateCourse(ctx, crs); err != nil {
			return errors.Wrap(err, "creating course")
		}
		_, err = svc.ProvisionAutomaticActions(ctx, crs.ID)
		return err
	})
	if err != nil {
		return Course{}, err
	}
	return crs, nil
}

func (svc *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

// Courses lists the courses usr can manage: all of them for admins, the owned ones for teachers.
func (svc *Service) Courses(ctx context.Context, usr user.User) ([]Course, error) {
	var filter CourseFilter
	if !usr.IsAdmin() {
		filter.OwnerID = usr.ID
	}
	return svc.repo.QueryCourses(ctx, filter)
}

func (svc *Service) UpdateCourse(ctx context.Context, crs Course, uc UpdateCourse) (Course, error) {
	if name := core.CleanString(uc.Name); name != "" {
		crs.Name = name
	}
	crs.Description = core.CleanString(uc.Description)
	if uc.IsActive != nil {
		crs.IsActive = *uc.IsActive
	}
	if err := svc.validate.Struct(uc); err != nil {
		return Course{}, err
	}
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, crs)
}

// CanManage reports whether usr may manage crs.
func CanManage(usr user.User, crs Course) bool {
	return usr.IsAdmin() || (usr.IsTeacher() && crs.OwnerID == usr.ID)
}

// Automatic actions

// ProvisionAutomaticActions creates the automatic actions missing from the course.
// Existing actions are left untouched, so teacher edits survive.
func (svc *Service) ProvisionAutomaticActions(ctx context.Context, courseID string) (int, error) {
	automatic := true
	existing, err := svc.repo.QueryActions(ctx, ActionFilter{CourseID: courseID, IsAutomatic: &automatic})
	if err != nil {
		return 0, errors.Wrap(err, "querying automatic actions")
	}
	names := make(map[string]bool, len(existing))
	for _, act := range existing {
		names[act.Name] = true
	}

	var created int
	now := time.Now().UTC()
	for _, act := range DefaultAutomaticActions(svc.scoring) {
		if names[act.Name] {
			continue
		}
		act.CourseID = courseID
		act.IsAutomatic = true
		act.IsActive = true
		act.CreatedAt = now
		if _, err = svc.repo.CreateAction(ctx, act); err != nil {
			return created, errors.Wrapf(err, "creating automatic action %q", act.Name)
		}
		created++
	}
	return created, nil
}

// ProvisionAllCourses provisions the automatic actions of every active course.
// Failures are logged and do not stop the other courses.
func (svc *Service) ProvisionAllCourses(ctx context.Context) error {
	active := true
	courses, err := svc.repo.QueryCourses(ctx, CourseFilter{IsActive: &active})
	if err != nil {
		return errors.Wrap(err, "querying active courses")
	}
	var total int
	for _, crs := range courses {
		n, err := svc.ProvisionAutomaticActions(ctx, crs.ID)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("provisioning automatic actions of course %s", crs.ID), err)
			continue
		}
		total += n
	}
	svc.logger.Info(fmt.Sprintf("automatic actions initialized: %d created for %d courses", total, len(courses)))
	return nil
}

// Academic years

// CreateYear creates the new active year of the course. Sibling years are deactivated.
func (svc *Service) CreateYear(ctx context.Context, crs Course, ny NewAcademicYear) (AcademicYear, error) {
	ny.Clean()
	if err := svc.validate.Struct(ny); err != nil {
		return AcademicYear{}, err
	}

	year := AcademicYear{
		CourseID:  crs.ID,
		Name:      ny.Name,
		StartDate: ny.StartDate.UTC(),
		EndDate:   ny.EndDate,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		if err := svc.checkYearName(ctx, crs.ID, year.Name, ""); err != nil {
			return err
		}
		var err error
		if year, err = svc.repo.CreateYear(ctx, year); err != nil {
			return errors.Wrap(err, "creating academic year")
		}
		return errors.Wrap(svc.repo.DeactivateYears(ctx, crs.ID, year.ID), "deactivating sibling years")
	})
	if err != nil {
		return AcademicYear{}, err
	}
	return year, nil
}

func (svc *Service) checkYearName(ctx context.Context, courseID, name, excludedID string) error {
	years, err := svc.repo.QueryYears(ctx, YearFilter{CourseID: courseID, Name: name})
	if err != nil {
		return errors.Wrap(err, "querying academic years")
	}
	for _, y := range years {
		if y.ID != excludedID {
			return validationErr("name", ErrYearNameExists)
		}
	}
	return nil
}

func (svc *Service) GetYear(ctx context.Context, id string) (AcademicYear, error) {
	return svc.repo.GetYear(ctx, id)
}

func (svc *Service) Years(ctx context.Context, courseID string) ([]AcademicYear, error) {
	return svc.repo.QueryYears(ctx, YearFilter{CourseID: courseID})
}

// EnrolledYears lists the years the student is enrolled in, most recent first.
func (svc *Service) EnrolledYears(ctx context.Context, userID string) ([]AcademicYear, error) {
	return svc.repo.QueryYears(ctx, YearFilter{EnrolledUserID: userID})
}

func (svc *Service) UpdateYear(ctx context.Context, year AcademicYear, ny NewAcademicYear) (AcademicYear, error) {
	ny.Clean()
	if err := svc.validate.Struct(ny); err != nil {
		return AcademicYear{}, err
	}
	if err := svc.checkYearName(ctx, year.CourseID, ny.Name, year.ID); err != nil {
		return AcademicYear{}, err
	}
	year.Name = ny.Name
	year.StartDate = ny.StartDate.UTC()
	year.EndDate = ny.EndDate
	return svc.repo.UpdateYear(ctx, year)
}

// ActivateYear makes year the only active year of its course.
func (svc *Service) ActivateYear(ctx context.Context, year AcademicYear) (AcademicYear, error) {
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.DeactivateYears(ctx, year.CourseID, year.ID); err != nil {
			return errors.Wrap(err, "deactivating sibling years")
		}
		year.IsActive = true
		var err error
		year, err = svc.repo.UpdateYear(ctx, year)
		return errors.Wrap(err, "activating academic year")
	})
	if err != nil {
		return AcademicYear{}, err
	}
	return year, nil
}

func (svc *Service) DeactivateYear(ctx context.Context, year AcademicYear) (AcademicYear, error) {
	year.IsActive = false
	return svc.repo.UpdateYear(ctx, year)
}

func (svc *Service) DeleteYear(ctx context.Context, year AcademicYear) error {
	return svc.tx.InTx(ctx, func(ctx context.Context) error {
		return svc.repo.DeleteYear(ctx, year.ID)
	})
}

// Enrollments

// Enroll enrolls the students in the year. Users already enrolled are reported as validation errors.
func (svc *Service) Enroll(ctx context.Context, year AcademicYear, userIDs ...string) ([]Enrollment, error) {
	userIDs = core.UniqueStrings(userIDs)
	enrollments := make([]Enrollment, 0, len(userIDs))
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := svc.repo.QueryEnrollments(ctx, year.ID)
		if err != nil {
			return errors.Wrap(err, "querying enrollments")
		}
		enrolled := make(map[string]bool, len(current))
		for _, e := range current {
			enrolled[e.UserID] = true
		}

		now := time.Now().UTC()
		for _, id := range userIDs {
			usr, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: id})
			if err != nil {
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsStudent() {
				return validationErr("userIds", ErrNotAStudent)
			}
			if enrolled[id] {
				return validationErr("userIds", ErrAlreadyEnrolled)
			}
			e, err := svc.repo.CreateEnrollment(ctx, Enrollment{UserID: id, AcademicYearID: year.ID, CreatedAt: now})
			if err != nil {
				return errors.Wrap(err, "creating enrollment")
			}
			enrollments = append(enrollments, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

// Unenroll removes the student from the year, unless they already have scores in it.
func (svc *Service) Unenroll(ctx context.Context, year AcademicYear, userID string) error {
	return svc.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := svc.repo.CountScores(ctx, ScoreCountFilter{UserID: userID, AcademicYearID: year.ID})
		if err != nil {
			return errors.Wrap(err, "counting scores")
		}
		if n > 0 {
			return core.NewValidationError(ErrEnrollmentHasScores)
		}
		return svc.repo.DeleteEnrollment(ctx, userID, year.ID)
	})
}

// EnrolledStudents returns the students enrolled in the year, in enrollment order.
// Enrollments referencing deleted users are skipped.
func (svc *Service) EnrolledStudents(ctx context.Context, academicYearID string) ([]user.User, error) {
	return EnrolledStudents(ctx, svc.repo, svc.usrRepo, academicYearID)
}

// EnrolledStudents resolves the enrollments of the year into students.
func EnrolledStudents(ctx context.Context, repo Repository, usrRepo user.Repository, academicYearID string) ([]user.User, error) {
	enrollments, err := repo.QueryEnrollments(ctx, academicYearID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	if len(enrollments) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.UserID)
	}
	users, err := usrRepo.FilterUsers(ctx, user.QueryFilter{IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "querying enrolled users")
	}
	byID := make(map[string]user.User, len(users))
	for _, usr := range users {
		byID[usr.ID] = usr
	}

	students := make([]user.User, 0, len(enrollments))
	for _, e := range enrollments {
		if usr, ok := byID[e.UserID]; ok && usr.IsStudent() {
			students = append(students, usr)
		}
	}
	return students, nil
}

// Actions

func (svc *Service) Actions(ctx context.Context, courseID string) ([]Action, error) {
	return svc.repo.QueryActions(ctx, ActionFilter{CourseID: courseID})
}

func (svc *Service) GetAction(ctx context.Context, id string) (Action, error) {
	return svc.repo.GetAction(ctx, id)
}

func (svc *Service) checkActionName(ctx context.Context, courseID, name, excludedID string) error {
	if IsAutomaticActionName(name) {
		return validationErr("name", ErrAutomaticActionName)
	}
	actions, err := svc.repo.QueryActions(ctx, ActionFilter{CourseID: courseID, Name: name})
	if err != nil {
		return errors.Wrap(err, "querying actions")
	}
	for _, act := range actions {
		if act.ID != excludedID {
			return validationErr("name", ErrActionNameExists)
		}
	}
	return nil
}

// CreateAction creates a manual action of the course.
func (svc *Service) CreateAction(ctx context.Context, crs Course, na NewAction) (Action, error) {
	na.Clean()
	if err := svc.validate.Struct(na); err != nil {
		return Action{}, err
	}
	if err := svc.checkActionName(ctx, crs.ID, na.Name, ""); err != nil {
		return Action{}, err
	}
	return svc.repo.CreateAction(ctx, Action{
		CourseID:    crs.ID,
		Name:        na.Name,
		Description: na.Description,
		Points:      na.Points,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	})
}

func (svc *Service) UpdateAction(ctx context.Context, act Action, ua UpdateAction) (Action, error) {
	if err := svc.validate.Struct(ua); err != nil {
		return Action{}, err
	}
	if name := core.CleanString(ua.Name); name != "" && name != act.Name {
		if act.IsAutomatic {
			return Action{}, validationErr("name", ErrAutomaticRename)
		}
		if err := svc.checkActionName(ctx, act.CourseID, name, act.ID); err != nil {
			return Action{}, err
		}
		act.Name = name
	}
	if ua.Description != nil {
		act.Description = core.CleanString(*ua.Description)
	}
	if ua.Points != nil {
		act.Points = *ua.Points
	}
	if ua.IsActive != nil {
		act.IsActive = *ua.IsActive
	}
	return svc.repo.UpdateAction(ctx, act)
}

// DeleteAction deletes a manual action no score refers to.
func (svc *Service) DeleteAction(ctx context.Context, act Action) error {
	if act.IsAutomatic {
		return core.NewValidationError(ErrAutomaticAction)
	}
	return svc.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := svc.repo.CountScores(ctx, ScoreCountFilter{ActionID: act.ID})
		if err != nil {
			return errors.Wrap(err, "counting scores")
		}
		if n > 0 {
			return core.NewValidationError(ErrActionInUse)
		}
		return svc.repo.DeleteAction(ctx, act.ID)
	})
}

// Lessons

func (svc *Service) CreateLesson(ctx context.Context, year AcademicYear, nl NewLesson) (Lesson, error) {
	nl.Clean()
	if err := svc.validate.Struct(nl); err != nil {
		return Lesson{}, err
	}
	return svc.repo.CreateLesson(ctx, Lesson{
		AcademicYearID: year.ID,
		Date:           nl.Date.UTC(),
		Title:          nl.Title,
		Description:    nl.Description,
		CreatedAt:      time.Now().UTC(),
	})
}

func (svc *Service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *Service) Lessons(ctx context.Context, academicYearID string) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, LessonFilter{AcademicYearID: academicYearID})
}

func (svc *Service) DeleteLesson(ctx context.Context, lesson Lesson) error {
	return svc.tx.InTx(ctx, func(ctx context.Context) error {
		return svc.repo.DeleteLesson(ctx, lesson.ID)
	})
}

// ResolveLesson loads the lesson with its academic year and course.
func (svc *Service) ResolveLesson(ctx context.Context, id string) (LessonContext, error) {
	return ResolveLesson(ctx, svc.repo, id)
}

// ResolveLesson loads the lesson with its academic year and course.
func ResolveLesson(ctx context.Context, repo Repository, id string) (LessonContext, error) {
	lesson, err := repo.GetLesson(ctx, id)
	if err != nil {
		return LessonContext{}, err
	}
	year, err := repo.GetYear(ctx, lesson.AcademicYearID)
	if err != nil {
		return LessonContext{}, errors.Wrap(err, "finding lesson academic year")
	}
	crs, err := repo.GetCourse(ctx, year.CourseID)
	if err != nil {
		return LessonContext{}, errors.Wrap(err, "finding lesson course")
	}
	return LessonContext{Lesson: lesson, Year: year, Course: crs}, nil
}
