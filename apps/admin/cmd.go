package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/user"
	"github.com/fantakombat/backend/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sqlx.DB
	usrSvc    *user.Service
	courseSvc *course.Service
	validate  *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-name NAME] [-teacher|-admin] - create or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, version, ...)")
	fmt.Println("  initactions - create the automatic actions missing from the active courses")
}

func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. One of username or email is required.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. One of username or email is required.")
	addUserName := addUserCmd.String("name", "", "The user's display name. Defaults to the username.")
	addUserTeacher := addUserCmd.Bool("teacher", false, "Give the user the teacher role.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Give the user the admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		role := user.RoleStudent
		switch {
		case *addUserAdmin:
			role = user.RoleAdmin
		case *addUserTeacher:
			role = user.RoleTeacher
		}
		usr, err := cli.addUser(ctx, *addUserName, *addUserUname, *addUserEmail, pwd, role)
		if err != nil {
			return err
		}
		fmt.Printf("user %s saved (%s)\n", usr.ID, role)
		return nil

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(ctx, *resetPasswordUname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return migrateFunc(cli.db, args[2], args[3:]...)

	case "initactions":
		return cli.courseSvc.ProvisionAllCourses(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}
