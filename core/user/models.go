package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/fantakombat/backend/core"
)

// Roles
const (
	RoleAdmin   = "admin:"
	RoleTeacher = "teacher:"
	RoleStudent = "student:"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent}

	rolePriorities = map[string]int{
		RoleAdmin:   30,
		RoleTeacher: 20,
		RoleStudent: 10,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	IsActive     bool       `json:"isActive"`
	Roles        []string   `json:"roles"`
	PasswordHash []byte     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"` // UTC
	UpdatedAt    time.Time  `json:"updatedAt"` // UTC
	LastLogin    *time.Time `json:"lastLogin"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

// IsTeacher reports whether u may manage courses. Admins are teachers too.
func (u *User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher) || u.IsAdmin()
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required,notblank"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"passwordConfirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name     string   `json:"name"`
	Username string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email    string   `json:"email" validate:"omitempty,email"`
	IsActive *bool    `json:"isActive"`
	Roles    []string `json:"roles" validate:"omitempty,allroles"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

// ChangePassword is submitted by a logged in User to replace their password.
type ChangePassword struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`

	// user attributes the new password is checked against
	name, username, email string
}

func (cp *ChangePassword) Validate(usr User, validate *validator.Validate) error {
	if err := usr.CheckPassword(cp.OldPassword); err != nil {
		return core.NewValidationError(
			ErrWrongPassword,
			core.FieldError{Field: "oldPassword", Error: ErrWrongPassword.Error()},
		)
	}
	cp.name, cp.username, cp.email = usr.Name, usr.Username, usr.Email
	return validate.Struct(cp)
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"isActive"`
	IDs      []string `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.IDs == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter looks a single User up. Only the first non-empty field is used.
type GetFilter struct {
	ID              string
	UsernameOrEmail string
}

// orderingColumns maps the sortable User fields to their storage columns.
var orderingColumns = map[string]string{
	"name":      "name",
	"username":  "username",
	"email":     "email",
	"createdAt": "created_at",
	"isActive":  "is_active",
}

// CleanOrdering maps ordering fields to storage columns, dropping unknown fields.
func CleanOrdering(ordering []core.DBOrdering) []core.DBOrdering {
	cleaned := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := orderingColumns[ord.Field]; ok {
			cleaned = append(cleaned, core.DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return cleaned
}
