package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/user"
)

// addUser creates a user.User, or reactivates and updates the one with the same username.
func (cli *commandLine) addUser(name, uname, email, pwd string, isStaff bool) error {
	ctx := context.Background()

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	switch errors.Cause(err) {
	case nil:
		usr.Name = core.CleanString(name)
		usr.Email = email
		usr.IsStaff = isStaff
		usr.IsActive = true
		if usr, err = cli.usrSvc.Save(ctx, usr); err != nil {
			return err
		}
		if _, err = cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "user %q updated\n", usr.Username)
	case user.ErrNotFound:
		usr, err = cli.usrSvc.Create(ctx, user.NewUser{
			Name:            name,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			IsStaff:         isStaff,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "user %q created\n", usr.Username)
	default:
		return err
	}
	return nil
}
