package main

import (
	"context"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/user"
)

// addUser updates or creates a user.User with the given role.
// An existing user matching the username or the email is reactivated and gets the new password.
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd, role string) (user.User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name = core.CleanString(name); name == "" {
		name = uname
		if name == "" {
			name = email
		}
	}

	usr, err := cli.findUser(ctx, uname, email)
	if err != nil {
		if !core.IsNotFound(err) {
			return user.User{}, err
		}
		nu := user.NewUser{
			Name:            name,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           []string{role},
		}
		if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
			return user.User{}, err
		}
		return cli.usrSvc.Create(ctx, nu)
	}

	active := true
	uu := user.UpdateUser{Name: name, Username: uname, Email: email, IsActive: &active, Roles: []string{role}}
	if err = uu.Validate(ctx, usr, cli.validate, cli.usrSvc); err != nil {
		return user.User{}, err
	}
	if usr, err = cli.usrSvc.Update(ctx, usr, uu); err != nil {
		return user.User{}, err
	}
	return cli.usrSvc.ChangePassword(ctx, usr, pwd)
}

func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	if uname != "" {
		usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
		if err == nil || !core.IsNotFound(err) {
			return usr, err
		}
	}
	if email == "" {
		return user.User{}, user.ErrNotFound
	}
	return cli.usrSvc.GetByUsernameOrEmail(ctx, email)
}
