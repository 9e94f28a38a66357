package main

import (
	"context"

	"github.com/tqwops/fieldops/core"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd, cli.conf.Security.BcryptCost); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateUser(ctx, usr, nil); err != nil {
		return err
	}
	return nil
}
