package main

import (
	"context"
)

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.ChangePassword(ctx, usr, pwd)
	return err
}
