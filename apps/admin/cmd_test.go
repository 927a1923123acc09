package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/user"
	dummydb "github.com/fantakombat/backend/storage/database/dummy"
	testutil "github.com/fantakombat/backend/tests"
)

type testCLI struct {
	*commandLine
	usrRepo user.Repository
	crsRepo course.Repository
}

func setup(t *testing.T) testCLI {
	t.Helper()
	db := dummydb.Open()
	validate, _ := testutil.NewValidator()
	usrRepo := dummydb.NewUserRepository(db)
	crsRepo := dummydb.NewCourseRepository(db)

	return testCLI{
		commandLine: &commandLine{
			usrSvc:    user.NewService(usrRepo),
			courseSvc: course.NewService(crsRepo, usrRepo, db, validate, testutil.Config(), testutil.NewLogger()),
			validate:  validate,
		},
		usrRepo: usrRepo,
		crsRepo: crsRepo,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

type extra struct {
	pwd string
}

func mockPassword(tt cliTest) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		if extra, ok := tt.extra.(extra); ok {
			return []byte(extra.pwd), nil
		}
		return nil, nil
	}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		if !assert.Error(t, err) {
			return
		}
		assert.True(t, err == tt.wantErr || core.IsNotFound(tt.wantErr) && core.IsNotFound(err), "cli.run() error = %v, wantErr %v", err, tt.wantErr)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	migrateFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "scores_notes", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no username nor email", args: []string{"adduser", "-teacher"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "sensei"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-lol"}, wantErr: errHelp},
		{name: "teacher", args: []string{"adduser", "-username", "Sensei", "-name", "Maestro", "-teacher"}, extra: extra{pwd: "kiai-kime"}},
		{name: "student", args: []string{"adduser", "-email", "anna@test.it"}, extra: extra{pwd: "zenkutsu-dachi"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		mockPassword(tt)
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}

	sensei, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "sensei")
	require.NoError(t, err)
	assert.Equal(t, "Maestro", sensei.Name)
	assert.Equal(t, []string{user.RoleTeacher}, sensei.Roles)
	assert.True(t, sensei.IsActive)
	assert.NoError(t, sensei.CheckPassword("kiai-kime"))

	anna, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "anna@test.it")
	require.NoError(t, err)
	assert.Equal(t, "anna@test.it", anna.Name)
	assert.Equal(t, []string{user.RoleStudent}, anna.Roles)

	// an existing user is promoted, reactivated and gets the new password
	deactivated := false
	_, err = cli.usrSvc.Update(ctx, anna, user.UpdateUser{Name: anna.Name, Email: anna.Email, IsActive: &deactivated})
	require.NoError(t, err)

	tt := cliTest{args: []string{"adduser", "-email", "ANNA@test.it", "-name", "Anna", "-admin"}, extra: extra{pwd: "mawashi-geri"}}
	mockPassword(tt)
	require.NoError(t, cli.run(append([]string{"admin"}, tt.args...)))

	anna, err = cli.usrSvc.GetByUsernameOrEmail(ctx, "anna@test.it")
	require.NoError(t, err)
	assert.Equal(t, "Anna", anna.Name)
	assert.Equal(t, []string{user.RoleAdmin}, anna.Roles)
	assert.True(t, anna.IsActive)
	assert.NoError(t, anna.CheckPassword("mawashi-geri"))

	users, err := cli.usrSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, cli.usrRepo, "User", "awe", "awe@test.it", "mdr", nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		mockPassword(tt)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil || tt.wantErrStr != "" {
				checkErr(t, tt, err)
				return
			}
			require.NoError(t, err)
			refreshedUsr, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
				t.Error("failed to update new password")
			}
			assert.NoError(t, refreshedUsr.CheckPassword(tt.extra.(extra).pwd))
		})
	}
}

func Test_commandLine_initActions(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	sensei := testutil.CreateTeacher(t, cli.usrRepo, "Sensei")

	crs, err := cli.courseSvc.CreateCourse(ctx, sensei, course.NewCourse{Name: "Karate"})
	require.NoError(t, err)
	actions, err := cli.courseSvc.Actions(ctx, crs.ID)
	require.NoError(t, err)
	for _, act := range actions {
		if act.Name == course.ActionAbsenceStreak {
			require.NoError(t, cli.crsRepo.DeleteAction(ctx, act.ID))
		}
	}

	require.NoError(t, cli.run([]string{"admin", "initactions"}))

	actions, err = cli.courseSvc.Actions(ctx, crs.ID)
	require.NoError(t, err)
	assert.Len(t, actions, len(course.AutomaticActionNames))
}
