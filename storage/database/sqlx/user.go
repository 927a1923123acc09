package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/user"
)

const userColumns = "id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Roles:        pq.StringArray(usr.Roles),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.TimeFromPtr(usr.LastLogin),
	}
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        []string(r.Roles),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin.Ptr(),
	}
}

// sortable user columns
var userOrderings = map[string]bool{"name": true, "username": true, "email": true, "created_at": true, "is_active": true}

func uniqueUserErr(constraint string) error {
	if constraint == "users_email_key" {
		return user.ErrEmailExists
	}
	return user.ErrUsernameExists
}

type userRepository struct {
	store *Store
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(store *Store) user.Repository {
	return &userRepository{store: store}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	var w where
	// empty values are stored as NULL and never match
	w.add("(username = ? OR email = ?)", username, email)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		w.add("id NOT IN (?)", ids)
	}

	var rows []userRow
	if err := repo.store.selectIn(ctx, &rows, "SELECT "+userColumns+" FROM users"+w.String(), w.args...); err != nil {
		return core.NewStorageError("checking user uniqueness", err)
	}
	for _, r := range rows {
		if username != "" && r.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	err := repo.store.insert(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)`,
		toUserRow(usr),
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return user.User{}, uniqueUserErr(constraint)
		}
		return user.User{}, core.NewStorageError("inserting user", err)
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var r userRow
	var err error
	switch {
	case filter.ID != "":
		err = repo.store.get(ctx, &r, "SELECT "+userColumns+" FROM users WHERE id = ?", filter.ID)
	case filter.UsernameOrEmail != "":
		err = repo.store.get(ctx, &r, "SELECT "+userColumns+" FROM users WHERE username = ? OR email = ? LIMIT 1",
			filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return r.user(), nil
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	var w where
	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
	}
	// users with any role that starts with any of the provided roles
	if len(filter.Roles) > 0 {
		conds := make([]string, 0, len(filter.Roles))
		args := make([]interface{}, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			conds = append(conds, "EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ?)")
			args = append(args, role+"%")
		}
		w.add("("+strings.Join(conds, " OR ")+")", args...)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return nil, nil
		}
		w.add("id IN (?)", filter.IDs)
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if userOrderings[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "name ASC")
	}

	var rows []userRow
	query := "SELECT " + userColumns + " FROM users" + w.String() + " ORDER BY " + strings.Join(orderList, ", ") + ", created_at"
	if err := repo.store.selectIn(ctx, &rows, query, w.args...); err != nil {
		return nil, core.NewStorageError("querying users", err)
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	r := toUserRow(usr)
	n, err := repo.store.exec(ctx, `
		UPDATE users
		SET name = ?, username = ?, email = ?, is_active = ?, roles = ?,
			password_hash = COALESCE(?, password_hash), updated_at = ?, last_login = ?
		WHERE id = ?`,
		r.Name, r.Username, r.Email, r.IsActive, r.Roles, null.NewBytes(r.PasswordHash, r.PasswordHash != nil),
		r.UpdatedAt, r.LastLogin, r.ID,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return user.User{}, uniqueUserErr(constraint)
		}
		return user.User{}, core.NewStorageError("updating user", err)
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

// DeleteUsersByID deletes the users with their enrollments, presences and scores.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.store.execIn(ctx, "DELETE FROM users WHERE id IN (?)", ids); err != nil {
		return core.NewStorageError("deleting users", err)
	}
	return nil
}
