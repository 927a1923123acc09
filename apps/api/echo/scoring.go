package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
	"github.com/fantakombat/backend/core/user"
)

type scoringApi struct {
	svc       *scoring.Service
	courseSvc *course.Service
	usrSvc    *user.Service
}

func registerScoringAPI(authed *echo.Group, deps ServerDeps) {
	api := scoringApi{
		svc:       deps.ScoringSvc,
		courseSvc: deps.CourseSvc,
		usrSvc:    deps.UserSvc,
	}
	staff := authed.Group("", staffMiddleware())

	lg := staff.Group("/lessons/:id", managedObjectMiddleware(api.usrSvc, lessonLoader(api.courseSvc)))
	lg.GET("", api.retrieveLesson)
	lg.DELETE("", api.destroyLesson)
	lg.PUT("/attendance", api.setAttendance)
	lg.POST("/scores", api.assignScores)

	staff.DELETE("/scores/:id", api.destroyScore, managedObjectMiddleware(api.usrSvc, scoreLoader(api.courseSvc, api.svc)))

	authed.GET("/rankings", api.rankings)
	authed.GET("/me/rankings", api.myRankings)
	authed.GET("/me/scores", api.myScores)
}

func (api *scoringApi) retrieveLesson(ctx echo.Context) error {
	lesson, err := contextLesson(ctx)
	if err != nil {
		return err
	}
	record, err := api.svc.LessonRecord(ctx.Request().Context(), lesson)
	if err != nil {
		return errors.Wrap(err, "loading lesson record")
	}
	return ctx.JSON(http.StatusOK, record)
}

func (api *scoringApi) destroyLesson(ctx echo.Context) error {
	lesson, err := contextLesson(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if err = api.courseSvc.DeleteLesson(rctx, lesson); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	api.svc.InvalidateRankings(rctx, lesson.AcademicYearID)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *scoringApi) setAttendance(ctx echo.Context) error {
	lesson, err := contextLesson(ctx)
	if err != nil {
		return err
	}
	var data AttendanceRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceRequest")
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	summary, err := api.svc.SetAttendance(ctx.Request().Context(), lesson.ID, usr.ID, data.PresentUserIDs)
	if err != nil {
		return errors.Wrap(err, "setting attendance")
	}
	return ctx.JSON(http.StatusOK, AttendanceResponse{AttendanceSummary: summary, Message: summary.Message()})
}

func (api *scoringApi) assignScores(ctx echo.Context) error {
	lesson, err := contextLesson(ctx)
	if err != nil {
		return err
	}
	var data scoring.Assignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Assignment")
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	res, err := api.svc.AssignScores(ctx.Request().Context(), lesson.ID, usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "assigning scores")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *scoringApi) destroyScore(ctx echo.Context) error {
	sc, err := contextScore(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.RemoveScore(ctx.Request().Context(), sc); err != nil {
		return errors.Wrap(err, "removing score")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// rankings serves the leaderboard of ?year=, or the global one.
func (api *scoringApi) rankings(ctx echo.Context) error {
	entries, err := api.svc.ComputeRankings(ctx.Request().Context(), ctx.QueryParam("year"))
	if err != nil {
		return errors.Wrap(err, "computing rankings")
	}
	if entries == nil {
		entries = []scoring.RankedEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *scoringApi) myRankings(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	res, err := api.svc.RankingsFor(ctx.Request().Context(), usr, ctx.QueryParam("year"))
	if err != nil {
		return errors.Wrap(err, "computing student rankings")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *scoringApi) myScores(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	history, err := api.svc.ScoreHistory(ctx.Request().Context(), usr, ctx.QueryParam("year"))
	if err != nil {
		return errors.Wrap(err, "loading score history")
	}
	if history.Entries == nil {
		history.Entries = []scoring.ScoreEntry{}
	}
	return ctx.JSON(http.StatusOK, history)
}
