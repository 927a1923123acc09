package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
	"github.com/fantakombat/backend/core/user"
)

type courseApi struct {
	svc      *course.Service
	scoring  *scoring.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerCourseAPI(authed *echo.Group, deps ServerDeps) {
	api := courseApi{
		svc:      deps.CourseSvc,
		scoring:  deps.ScoringSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}
	staff := authed.Group("", staffMiddleware())

	staff.GET("/courses", api.queryCourses)
	staff.POST("/courses", api.createCourse)

	cg := staff.Group("/courses/:id", managedObjectMiddleware(api.usrSvc, courseLoader(api.svc)))
	cg.GET("", api.retrieveCourse)
	cg.PUT("", api.updateCourse)
	cg.GET("/years", api.queryYears)
	cg.POST("/years", api.createYear)
	cg.GET("/actions", api.queryActions)
	cg.POST("/actions", api.createAction)

	yg := staff.Group("/years/:id", managedObjectMiddleware(api.usrSvc, yearLoader(api.svc)))
	yg.GET("", api.retrieveYear)
	yg.PUT("", api.updateYear)
	yg.DELETE("", api.destroyYear)
	yg.POST("/activate", api.activateYear)
	yg.POST("/deactivate", api.deactivateYear)
	yg.GET("/enrollments", api.queryEnrolled)
	yg.POST("/enrollments", api.enroll)
	yg.DELETE("/enrollments/:userID", api.unenroll)
	yg.GET("/lessons", api.queryLessons)
	yg.POST("/lessons", api.createLesson)

	ag := staff.Group("/actions/:id", managedObjectMiddleware(api.usrSvc, actionLoader(api.svc)))
	ag.PUT("", api.updateAction)
	ag.DELETE("", api.destroyAction)
}

// Courses

func (api *courseApi) queryCourses(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	courses, err := api.svc.Courses(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) createCourse(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	crs, err := api.svc.CreateCourse(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) retrieveCourse(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	detail := CourseDetail{Course: crs}
	if detail.Years, err = api.svc.Years(rctx, crs.ID); err != nil {
		return errors.Wrap(err, "querying academic years")
	}
	if detail.Actions, err = api.svc.Actions(rctx, crs.ID); err != nil {
		return errors.Wrap(err, "querying actions")
	}
	if detail.Years == nil {
		detail.Years = []course.AcademicYear{}
	}
	if detail.Actions == nil {
		detail.Actions = []course.Action{}
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *courseApi) updateCourse(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if crs, err = api.svc.UpdateCourse(ctx.Request().Context(), crs, data); err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

// Academic years

func (api *courseApi) queryYears(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	years, err := api.svc.Years(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "querying academic years")
	}
	if years == nil {
		years = []course.AcademicYear{}
	}
	return ctx.JSON(http.StatusOK, years)
}

func (api *courseApi) createYear(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	var data course.NewAcademicYear
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAcademicYear")
	}
	year, err := api.svc.CreateYear(ctx.Request().Context(), crs, data)
	if err != nil {
		return errors.Wrap(err, "creating academic year")
	}
	return ctx.JSON(http.StatusCreated, year)
}

func (api *courseApi) retrieveYear(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *courseApi) updateYear(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	var data course.NewAcademicYear
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAcademicYear")
	}
	if year, err = api.svc.UpdateYear(ctx.Request().Context(), year, data); err != nil {
		return errors.Wrap(err, "updating academic year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *courseApi) activateYear(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	if year, err = api.svc.ActivateYear(ctx.Request().Context(), year); err != nil {
		return errors.Wrap(err, "activating academic year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *courseApi) deactivateYear(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	if year, err = api.svc.DeactivateYear(ctx.Request().Context(), year); err != nil {
		return errors.Wrap(err, "deactivating academic year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *courseApi) destroyYear(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if err = api.svc.DeleteYear(rctx, year); err != nil {
		return errors.Wrap(err, "deleting academic year")
	}
	api.scoring.InvalidateRankings(rctx, year.ID)
	return ctx.NoContent(http.StatusNoContent)
}

// Enrollments

func (api *courseApi) queryEnrolled(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	students, err := api.svc.EnrolledStudents(ctx.Request().Context(), year.ID)
	if err != nil {
		return errors.Wrap(err, "querying enrolled students")
	}
	if students == nil {
		students = []user.User{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	var data EnrollRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	enrollments, err := api.svc.Enroll(rctx, year, data.UserIDs...)
	if err != nil {
		return errors.Wrap(err, "enrolling students")
	}
	api.scoring.InvalidateRankings(rctx, year.ID)
	return ctx.JSON(http.StatusCreated, enrollments)
}

func (api *courseApi) unenroll(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if err = api.svc.Unenroll(rctx, year, ctx.Param("userID")); err != nil {
		return errors.Wrap(err, "unenrolling student")
	}
	api.scoring.InvalidateRankings(rctx, year.ID)
	return ctx.NoContent(http.StatusNoContent)
}

// Actions

func (api *courseApi) queryActions(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	actions, err := api.svc.Actions(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "querying actions")
	}
	if actions == nil {
		actions = []course.Action{}
	}
	return ctx.JSON(http.StatusOK, actions)
}

func (api *courseApi) createAction(ctx echo.Context) error {
	crs, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	var data course.NewAction
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAction")
	}
	act, err := api.svc.CreateAction(ctx.Request().Context(), crs, data)
	if err != nil {
		return errors.Wrap(err, "creating action")
	}
	return ctx.JSON(http.StatusCreated, act)
}

func (api *courseApi) updateAction(ctx echo.Context) error {
	act, err := contextAction(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateAction
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAction")
	}
	if act, err = api.svc.UpdateAction(ctx.Request().Context(), act, data); err != nil {
		return errors.Wrap(err, "updating action")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *courseApi) destroyAction(ctx echo.Context) error {
	act, err := contextAction(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAction(ctx.Request().Context(), act); err != nil {
		return errors.Wrap(err, "deleting action")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lessons

func (api *courseApi) queryLessons(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.svc.Lessons(ctx.Request().Context(), year.ID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) createLesson(ctx echo.Context) error {
	year, err := contextYear(ctx)
	if err != nil {
		return err
	}
	var data course.NewLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	lesson, err := api.svc.CreateLesson(ctx.Request().Context(), year, data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, lesson)
}
