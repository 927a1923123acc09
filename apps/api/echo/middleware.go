package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
	"github.com/fantakombat/backend/core/user"
)

// context keys of the objects loaded by the detail middlewares
const (
	ctxObjectKey = "object"
	ctxCourseKey = "course"
	ctxYearKey   = "year"
	ctxLessonKey = "lesson"
)

var errObjNotFoundInCtx = errors.New("object not found in echo.Context")

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// staffMiddleware lets teachers and admins through.
func staffMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.IsTeacher || claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// activeUserMiddleware rejects the tokens of deleted or deactivated users.
func activeUserMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			return next(ctx)
		}
	}
}

func ctxUserOrAdminMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set(ctxObjectKey, usr)
					return next(ctx)
				} else if !core.IsNotFound(err) {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

// loader finds the object identified by the :id path param and the course it belongs to.
type loader func(ctx echo.Context, id string) (obj interface{}, crs course.Course, err error)

// managedObjectMiddleware loads the :id object into the context when the context User manages its course.
// Objects of courses managed by someone else are reported as not found.
func managedObjectMiddleware(usrSvc *user.Service, load loader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return err
			}
			obj, crs, err := load(ctx, ctx.Param("id"))
			if err != nil {
				if core.IsNotFound(err) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "loading "+strings.TrimPrefix(ctx.Path(), "/v1/"))
			}
			if !course.CanManage(ctxUsr, crs) {
				return errHttpNotFound
			}
			ctx.Set(ctxObjectKey, obj)
			ctx.Set(ctxCourseKey, crs)
			return next(ctx)
		}
	}
}

func courseLoader(svc *course.Service) loader {
	return func(ctx echo.Context, id string) (interface{}, course.Course, error) {
		crs, err := svc.GetCourse(ctx.Request().Context(), id)
		return crs, crs, err
	}
}

func yearLoader(svc *course.Service) loader {
	return func(ctx echo.Context, id string) (interface{}, course.Course, error) {
		rctx := ctx.Request().Context()
		year, err := svc.GetYear(rctx, id)
		if err != nil {
			return nil, course.Course{}, err
		}
		crs, err := svc.GetCourse(rctx, year.CourseID)
		return year, crs, err
	}
}

func actionLoader(svc *course.Service) loader {
	return func(ctx echo.Context, id string) (interface{}, course.Course, error) {
		rctx := ctx.Request().Context()
		act, err := svc.GetAction(rctx, id)
		if err != nil {
			return nil, course.Course{}, err
		}
		crs, err := svc.GetCourse(rctx, act.CourseID)
		return act, crs, err
	}
}

func lessonLoader(svc *course.Service) loader {
	return func(ctx echo.Context, id string) (interface{}, course.Course, error) {
		lc, err := svc.ResolveLesson(ctx.Request().Context(), id)
		if err != nil {
			return nil, course.Course{}, err
		}
		ctx.Set(ctxYearKey, lc.Year)
		return lc.Lesson, lc.Course, nil
	}
}

func scoreLoader(crsSvc *course.Service, scSvc *scoring.Service) loader {
	return func(ctx echo.Context, id string) (interface{}, course.Course, error) {
		rctx := ctx.Request().Context()
		sc, err := scSvc.GetScore(rctx, id)
		if err != nil {
			return nil, course.Course{}, err
		}
		lc, err := crsSvc.ResolveLesson(rctx, sc.LessonID)
		if err != nil {
			return nil, course.Course{}, err
		}
		ctx.Set(ctxLessonKey, lc.Lesson)
		return sc, lc.Course, nil
	}
}

func contextCourse(ctx echo.Context) (course.Course, error) {
	crs, ok := ctx.Get(ctxCourseKey).(course.Course)
	if !ok {
		return course.Course{}, errors.Wrap(errObjNotFoundInCtx, "retrieving course from context")
	}
	return crs, nil
}

func contextYear(ctx echo.Context) (course.AcademicYear, error) {
	year, ok := ctx.Get(ctxObjectKey).(course.AcademicYear)
	if !ok {
		return course.AcademicYear{}, errors.Wrap(errObjNotFoundInCtx, "retrieving academic year from context")
	}
	return year, nil
}

func contextAction(ctx echo.Context) (course.Action, error) {
	act, ok := ctx.Get(ctxObjectKey).(course.Action)
	if !ok {
		return course.Action{}, errors.Wrap(errObjNotFoundInCtx, "retrieving action from context")
	}
	return act, nil
}

func contextLesson(ctx echo.Context) (course.Lesson, error) {
	lesson, ok := ctx.Get(ctxObjectKey).(course.Lesson)
	if !ok {
		return course.Lesson{}, errors.Wrap(errObjNotFoundInCtx, "retrieving lesson from context")
	}
	return lesson, nil
}

func contextScore(ctx echo.Context) (scoring.Score, error) {
	sc, ok := ctx.Get(ctxObjectKey).(scoring.Score)
	if !ok {
		return scoring.Score{}, errors.Wrap(errObjNotFoundInCtx, "retrieving score from context")
	}
	return sc, nil
}
