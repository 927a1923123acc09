package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	defer repo.db.read(ctx)()

	isExcluded := func(usr user.User) bool {
		for _, excl := range excludedUsers {
			if excl.ID == usr.ID {
				return true
			}
		}
		return false
	}
	for _, usr := range repo.db.users {
		if username != "" && usr.Username == username && !isExcluded(usr) {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email && !isExcluded(usr) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	defer repo.db.write(ctx)()

	usr.ID = newID()
	repo.db.users = append(repo.db.users, usr)
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	defer repo.db.read(ctx)()

	for _, usr := range repo.db.users {
		switch {
		case filter.ID != "":
			if usr.ID == filter.ID {
				return usr, nil
			}
		case filter.UsernameOrEmail != "":
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	defer repo.db.read(ctx)()

	search := strings.ToLower(filter.Search)
	var users []user.User
	for _, u := range repo.db.users {
		// users with search keyword matching any Name, Username or Email ?
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.Name), search) {
			continue
		}
		// users with any of the specified roles
		if len(filter.Roles) > 0 {
			var match bool
			for _, r := range filter.Roles {
				if u.RoleStartsWith(r) {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		if filter.IDs != nil && !contains(filter.IDs, u.ID) {
			continue
		}
		users = append(users, u)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return users, nil
}

func compareUsers(a, b user.User, column string) int {
	switch column {
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "created_at":
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		}
	case "is_active":
		if a.IsActive != b.IsActive {
			if b.IsActive {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	defer repo.db.write(ctx)()

	for i := range repo.db.users {
		if repo.db.users[i].ID == usr.ID {
			usr.CreatedAt = repo.db.users[i].CreatedAt
			if usr.PasswordHash == nil {
				usr.PasswordHash = repo.db.users[i].PasswordHash
			}
			repo.db.users[i] = usr
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

// DeleteUsersByID deletes the users with their presences, scores and enrollments.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	defer repo.db.write(ctx)()

	t := &repo.db.tables
	users := t.users[:0]
	for _, u := range t.users {
		if !contains(ids, u.ID) {
			users = append(users, u)
		}
	}
	t.users = users

	enrollments := t.enrollments[:0]
	for _, e := range t.enrollments {
		if !contains(ids, e.UserID) {
			enrollments = append(enrollments, e)
		}
	}
	t.enrollments = enrollments

	presences := t.presences[:0]
	for _, p := range t.presences {
		if !contains(ids, p.UserID) {
			presences = append(presences, p)
		}
	}
	t.presences = presences

	scores := t.scores[:0]
	for _, s := range t.scores {
		if !contains(ids, s.UserID) {
			scores = append(scores, s)
		}
	}
	t.scores = scores
	return nil
}
