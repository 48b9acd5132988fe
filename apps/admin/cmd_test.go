package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/progress"
	"github.com/plp/edmodule/core/promo"
	"github.com/plp/edmodule/core/user"
	"github.com/plp/edmodule/testutil"
)

type staticEDX struct {
	data map[string]map[string]interface{}
	err  error
}

func (c staticEDX) GetCoursesProgress(context.Context, string, []string) (map[string]map[string]interface{}, error) {
	return c.data, c.err
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantAnyErr bool
	extra      interface{}
}

func setup(t *testing.T, edx progress.Client) (*commandLine, *testutil.Services, *bytes.Buffer) {
	t.Helper()
	svcs := testutil.NewServices()
	if edx == nil {
		edx = staticEDX{}
	}
	out := new(bytes.Buffer)
	return &commandLine{
		usrSvc:   svcs.Users,
		modSvc:   svcs.Modules,
		promoSvc: svcs.Promos,
		syncer:   progress.NewSyncer(edx, svcs.Enrollments, svcs.Modules, svcs.Users, new(testutil.Logger), 2),
		out:      out,
	}, svcs, out
}

func runTests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if pwd, ok := tt.extra.(string); ok {
				return []byte(pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantAnyErr:
				assert.Error(t, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErrStr)
				}
			default:
				require.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t, nil)

	var gotCommand string
	gooseRunFunc = func(_ context.Context, command string, db *sql.DB, dir string, args ...string) error {
		gotCommand = command
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
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "promo_codes", "sql"}},
	}
	runTests(t, cli, tests, func(t *testing.T, tt cliTest) {
		assert.Equal(t, tt.args[1], gotCommand)
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli, svcs, _ := setup(t, nil)
	ctx := context.Background()

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "jdoe"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "jdoe", "-email", "jdoe@test.cd"}, wantErr: errHelp},
		{
			name:       "weak password",
			args:       []string{"adduser", "-name", "John", "-username", "jdoe", "-email", "jdoe@test.cd"},
			extra:      "password",
			wantAnyErr: true,
		},
		{
			name:  "create",
			args:  []string{"adduser", "-name", "John", "-username", "jdoe", "-email", "jdoe@test.cd"},
			extra: "s3cr3t-Pwd",
		},
		{
			name:  "update",
			args:  []string{"adduser", "-name", "John Doe", "-username", "jdoe", "-email", "jdoe@test.cd", "-staff"},
			extra: "N3w-s3cr3t",
		},
	}
	runTests(t, cli, tests, func(t *testing.T, tt cliTest) {
		usr, err := svcs.Users.GetByUsernameOrEmail(ctx, "jdoe")
		require.NoError(t, err)
		assert.NoError(t, usr.CheckPassword(tt.extra.(string)))
		assert.True(t, usr.IsActive)
		assert.Equal(t, strings.Contains(strings.Join(tt.args, " "), "-staff"), usr.IsStaff)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, svcs, _ := setup(t, nil)
	usr := testutil.CreateUser(t, svcs.Users, "User", "awe", "awe@test.cd", "", false)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "N3w-s3cr3t", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "N3w-s3cr3t"},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: "Ot4er-s3cr3t"},
	}
	runTests(t, cli, tests, func(t *testing.T, tt cliTest) {
		refreshed, err := svcs.Users.GetByID(context.Background(), usr.ID)
		require.NoError(t, err)
		assert.NoError(t, refreshed.CheckPassword(tt.extra.(string)))
	})
}

func Test_commandLine_syncProgress(t *testing.T) {
	edx := staticEDX{data: map[string]map[string]interface{}{"course-v1:plp+c1+s1": {"grade": 1}}}
	cli, svcs, out := setup(t, edx)
	ctx := context.Background()
	now := time.Now()

	usr := testutil.CreateUser(t, svcs.Users, "User", "awe", "awe@test.cd", "", false)
	c1 := testutil.CreateCourse(t, svcs.Courses, "c1", "math", testutil.StartedSession("s1", now, 100))
	c2 := testutil.CreateCourse(t, svcs.Courses, "c2", "math", testutil.OpenSession("s2", now, 100))
	started := testutil.CreateModule(t, svcs.Modules, "started", edmodule.StatusPublished, 0, c1.ID)
	scheduled := testutil.CreateModule(t, svcs.Modules, "scheduled", edmodule.StatusPublished, 0, c2.ID)
	for _, m := range []edmodule.Module{started, scheduled} {
		_, err := svcs.Enrollments.Enroll(ctx, usr.ID, m)
		require.NoError(t, err)
	}

	tests := []cliTest{
		{name: "unknown module", args: []string{"syncprogress", "-module", "nope"}, wantErr: edmodule.ErrNotFound},
		{name: "one module", args: []string{"syncprogress", "-module", "scheduled"}, extra: "updated: 0, skipped: 1"},
		{name: "all", args: []string{"syncprogress"}, extra: "updated: 1, skipped: 1"},
	}
	runTests(t, cli, tests, func(t *testing.T, tt cliTest) {
		assert.Contains(t, out.String(), tt.extra.(string))
		out.Reset()
	})

	e, err := svcs.Enrollments.Get(ctx, usr.ID, started.ID)
	require.NoError(t, err)
	p, err := svcs.Enrollments.Progress(ctx, e.ID)
	require.NoError(t, err)
	assert.Contains(t, p.Progress, "course-v1:plp+c1+s1")
}

func Test_commandLine_syncProgress_remoteErrors(t *testing.T) {
	edx := staticEDX{err: &progress.RemoteError{Kind: progress.ErrTimeout}}
	cli, svcs, out := setup(t, edx)
	now := time.Now()

	usr := testutil.CreateUser(t, svcs.Users, "User", "awe", "awe@test.cd", "", false)
	c := testutil.CreateCourse(t, svcs.Courses, "c1", "math", testutil.StartedSession("s1", now, 100))
	m := testutil.CreateModule(t, svcs.Modules, "started", edmodule.StatusPublished, 0, c.ID)
	_, err := svcs.Enrollments.Enroll(context.Background(), usr.ID, m)
	require.NoError(t, err)

	require.NoError(t, cli.run([]string{"admin", "syncprogress"}))
	assert.Contains(t, out.String(), "remote errors: 1, failed: 0")
}

func Test_commandLine_createPromo(t *testing.T) {
	cli, svcs, out := setup(t, nil)
	ctx := context.Background()
	till := time.Now().AddDate(0, 1, 0).Format("2006-01-02")

	c := testutil.CreateCourse(t, svcs.Courses, "c1", "math", testutil.OpenSession("s1", time.Now(), 100))
	m := testutil.CreateModule(t, svcs.Modules, "algebra", edmodule.StatusPublished, 10, c.ID)

	tests := []cliTest{
		{name: "no product", args: []string{"createpromo", "-till", till, "-percent", "10"}, wantErr: errHelp},
		{name: "both products", args: []string{"createpromo", "-module", "algebra", "-course", "1", "-till", till, "-percent", "10"}, wantErr: errHelp},
		{name: "no discount", args: []string{"createpromo", "-module", "algebra", "-till", till}, wantErr: errHelp},
		{name: "bad date", args: []string{"createpromo", "-module", "algebra", "-till", "tomorrow", "-percent", "10"}, wantErrStr: "invalid date"},
		{name: "bad percent", args: []string{"createpromo", "-module", "algebra", "-till", till, "-percent", "ten"}, wantErrStr: "invalid percent"},
		{name: "unknown module", args: []string{"createpromo", "-module", "nope", "-till", till, "-percent", "10"}, wantErr: edmodule.ErrNotFound},
		{
			name:  "module",
			args:  []string{"createpromo", "-module", "algebra", "-till", till, "-percent", "10", "-code", "ALG10", "-max", "3", "-exclusive"},
			extra: "ALG10",
		},
		{
			name:  "course",
			args:  []string{"createpromo", "-course", strconv.Itoa(c.ID), "-till", till, "-price", "49.99", "-code", "C1FIX"},
			extra: "C1FIX",
		},
	}
	runTests(t, cli, tests, func(t *testing.T, tt cliTest) {
		assert.Contains(t, out.String(), "promo code "+tt.extra.(string)+" created")
		out.Reset()
	})

	pc, err := svcs.Promos.Get(ctx, "ALG10")
	require.NoError(t, err)
	assert.Equal(t, promo.ProductEdmodule, pc.ProductType)
	assert.Equal(t, m.ID, pc.ProductID())
	assert.Equal(t, 3, pc.MaxUsage)
	assert.False(t, pc.UseWithOthers)

	pc, err = svcs.Promos.Get(ctx, "C1FIX")
	require.NoError(t, err)
	assert.Equal(t, c.ID, pc.ProductID())
	assert.True(t, pc.DiscountPrice.Valid)
}
