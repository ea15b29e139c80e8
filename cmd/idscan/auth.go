package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/citizen-docs/internal/apiclient"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
)

var loginCmd = command{
	summary: "sign in and store the access token",
	usage:   "[--username NAME] [--password PW]",
	flags: func(fs *pflag.FlagSet) {
		fs.StringP("username", "u", "", "account name")
		fs.StringP("password", "p", "", "password (prompted when empty)")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		username, _ := fs.GetString("username")
		password, _ := fs.GetString("password")
		var err error
		if username, err = a.ask(ctx, username, "Username: "); err != nil {
			return err
		}
		if password, err = a.ask(ctx, password, "Password: "); err != nil {
			return err
		}
		user, err := a.session.Login(ctx, a.client, username, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Signed in as %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

var registerCmd = command{
	summary: "create an account",
	usage:   "[--username NAME] [--email ADDR] [--password PW]",
	flags: func(fs *pflag.FlagSet) {
		fs.StringP("username", "u", "", "account name")
		fs.StringP("email", "e", "", "email address")
		fs.StringP("password", "p", "", "password (prompted when empty)")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		in := apiclient.RegisterRequest{}
		in.Username, _ = fs.GetString("username")
		in.Email, _ = fs.GetString("email")
		in.Password, _ = fs.GetString("password")
		var err error
		if in.Username, err = a.ask(ctx, in.Username, "Username: "); err != nil {
			return err
		}
		if in.Email, err = a.ask(ctx, in.Email, "Email: "); err != nil {
			return err
		}
		if in.Password, err = a.ask(ctx, in.Password, "Password: "); err != nil {
			return err
		}
		if err := common.ValidateCredentials(in.Username, in.Email, in.Password); err != nil {
			return err
		}
		user, err := a.client.Register(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Registered %s. Run `idscan login` to sign in.\n", user.Username)
		return nil
	},
}

var logoutCmd = command{
	summary: "forget the stored token",
	run: func(_ context.Context, a *app, _ *pflag.FlagSet) error {
		if err := a.session.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Signed out")
		return nil
	},
}

var whoamiCmd = command{
	summary: "show the signed-in user",
	run: func(ctx context.Context, a *app, _ *pflag.FlagSet) error {
		user, err := a.session.User(ctx, a.client)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s <%s> role=%s active=%t\n", user.Username, user.Email, user.Role, user.IsActive)
		if exp := a.session.ExpiresAt(); !exp.IsZero() {
			fmt.Fprintf(a.out, "token expires %s\n", exp.Local().Format(time.DateTime))
		}
		return nil
	},
}

var refreshCmd = command{
	summary: "trade the stored token for a fresh one",
	run: func(ctx context.Context, a *app, _ *pflag.FlagSet) error {
		if err := a.session.Refresh(ctx, a.client); err != nil {
			return err
		}
		if exp := a.session.ExpiresAt(); !exp.IsZero() {
			fmt.Fprintf(a.out, "Token refreshed, expires %s\n", exp.Local().Format(time.DateTime))
			return nil
		}
		fmt.Fprintln(a.out, "Token refreshed")
		return nil
	},
}

var passwdCmd = command{
	summary: "change your password",
	usage:   "[--old PW] [--new PW]",
	flags: func(fs *pflag.FlagSet) {
		fs.String("old", "", "current password")
		fs.String("new", "", "new password")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		oldPW, _ := fs.GetString("old")
		newPW, _ := fs.GetString("new")
		var err error
		if oldPW, err = a.ask(ctx, oldPW, "Current password: "); err != nil {
			return err
		}
		if newPW, err = a.ask(ctx, newPW, "New password: "); err != nil {
			return err
		}
		v := common.NewValidator().Field("new password", newPW, common.Required, common.Password)
		if err := common.ValidateAndReturnError(v); err != nil {
			return err
		}
		if err := a.client.ChangePassword(ctx, oldPW, newPW); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Password changed")
		return nil
	},
}
