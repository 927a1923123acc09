package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrWrongPassword  = errors.New("wrong password")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		// Users are sorted by name unless orderings are given.
		FilterUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	// ChangeHook is called before Users are created, updated or deleted, with the ids of the
	// Users involved (none on create). The returned func runs once the change is stored.
	ChangeHook func(ctx context.Context, ids ...string) (after func(ctx context.Context))

	Service struct {
		repo  Repository
		hooks []ChangeHook
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CheckUniqueness reports a ValidationError on the field already taken by another User.
func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// OnChange registers hook for every create, update and delete.
func (svc *Service) OnChange(hook ChangeHook) {
	svc.hooks = append(svc.hooks, hook)
}

// changing runs the hooks and returns the funcs to call after a successful change.
func (svc *Service) changing(ctx context.Context, ids ...string) func(context.Context) {
	afters := make([]func(context.Context), 0, len(svc.hooks))
	for _, hook := range svc.hooks {
		if after := hook(ctx, ids...); after != nil {
			afters = append(afters, after)
		}
	}
	return func(ctx context.Context) {
		for _, after := range afters {
			after(ctx)
		}
	}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	roles := nu.Roles
	if len(roles) == 0 {
		roles = []string{RoleStudent}
	}
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	changed := svc.changing(ctx)
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	changed(ctx)
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterUsers(ctx, *filter, CleanOrdering(ordering)...)
}

// Students lists the active and inactive Users holding the student role, sorted by name.
func (svc *Service) Students(ctx context.Context) ([]User, error) {
	return svc.repo.FilterUsers(ctx, QueryFilter{Roles: []string{RoleStudent}})
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	usr.UpdatedAt = time.Now().UTC()
	changed := svc.changing(ctx, usr.ID)
	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	changed(ctx)
	return usr, nil
}

func (svc *Service) ChangePassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	usr.LastLogin = &now
	return svc.repo.UpdateUser(ctx, usr)
}

// Delete removes the Users with their enrollments, presences and scores.
func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	changed := svc.changing(ctx, ids...)
	if err := svc.repo.DeleteUsersByID(ctx, ids...); err != nil {
		return err
	}
	changed(ctx)
	return nil
}
