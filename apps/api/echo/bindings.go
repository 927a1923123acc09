package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
)

const orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the comma separated ordering fields of the query. A leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:]
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	EnrollRequest struct {
		UserIDs []string `json:"userIds" validate:"required,min=1,dive,required"`
	}

	AttendanceRequest struct {
		PresentUserIDs []string `json:"presentUserIds"`
	}

	AttendanceResponse struct {
		scoring.AttendanceSummary
		Message string `json:"message"`
	}

	CourseDetail struct {
		Course  course.Course         `json:"course"`
		Years   []course.AcademicYear `json:"years"`
		Actions []course.Action       `json:"actions"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (er *EnrollRequest) Validate(validate *validator.Validate) error {
	er.UserIDs = core.UniqueStrings(er.UserIDs)
	return validate.Struct(er)
}
