package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/user"
)

const errNoPermsToSetRoles = "not enough rights to set these roles"

type userApi struct {
	svc      *user.Service
	tokens   *TokenIssuer
	validate *validator.Validate
}

func registerUserAPI(public, authed *echo.Group, tokens *TokenIssuer, deps ServerDeps) {
	api := userApi{
		svc:      deps.UserSvc,
		tokens:   tokens,
		validate: deps.Validate,
	}

	// un-authed endpoints
	public.POST("/users/login", api.login)

	ug := authed.Group("/users")
	ug.POST("/token-refresh", api.refreshToken)
	ug.GET("/me", api.me)
	ug.PUT("/me/password", api.changePassword)

	ug.GET("", api.query, staffMiddleware())
	ug.POST("/register", api.create, staffMiddleware())
	ug.GET("/roles", api.queryRoles, staffMiddleware())
	ug.DELETE("", api.destroyMultiple, adminMiddleware())

	// detail endpoints
	ug.GET("/:id", api.retrieve, ctxUserOrAdminMiddleware(api.svc))
	ug.PUT("/:id", api.update, ctxUserOrAdminMiddleware(api.svc))
	ug.DELETE("/:id", api.destroy, staffMiddleware())
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := api.tokens.authenticate(ctx.Request().Context(), data.Username, data.Password, api.svc)
	if err != nil {
		return err
	}
	token, err := api.tokens.Token(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.tokens.refresh(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) changePassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = data.Validate(usr, api.validate); err != nil {
		return err
	}
	if _, err = api.svc.ChangePassword(ctx.Request().Context(), usr, data.Password); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been changed."})
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	usr, err := api.svc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// bindQueryFilter reads ?search=&role=&isActive= from the query.
func bindQueryFilter(ctx echo.Context) *user.QueryFilter {
	params := ctx.QueryParams()
	filter := &user.QueryFilter{
		Search: params.Get("search"),
		Roles:  params["role"],
	}
	if b, err := strconv.ParseBool(params.Get("isActive")); err == nil {
		filter.IsActive = &b
	}
	filter.Clean()
	return filter
}

func (api *userApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), bindQueryFilter(ctx), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get(ctxObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving user from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get(ctxObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving user from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	if !ctxUsr.IsAdmin() {
		// `IsActive`, `Roles`, `Username` and `Email` can only be changed by admin
		if data.IsActive != nil || data.Roles != nil || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}

	rctx := ctx.Request().Context()
	if err = data.Validate(rctx, usr, api.validate, api.svc); err != nil {
		return err
	}
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	if usr, err = api.svc.Update(rctx, usr, data); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// canDelete reports whether ctxUsr may delete usr: never themselves, and teachers only users below them.
func canDelete(ctxUsr, usr user.User) bool {
	if usr.ID == ctxUsr.ID {
		return false
	}
	return ctxUsr.IsAdmin() || user.MaxRolePriority(usr.Roles) < user.MaxRolePriority(ctxUsr.Roles)
}

func (api *userApi) destroy(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	usr, err := api.svc.GetByID(rctx, ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !canDelete(ctxUsr, usr) {
		return errHttpForbidden
	}

	if err = api.svc.Delete(rctx, usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	ids := core.UniqueStrings(ctx.QueryParams()["id"])
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == ctxUsr.ID {
			return errHttpForbidden
		}
	}

	if err = api.svc.Delete(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}
