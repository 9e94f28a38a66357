package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(email, rut, nombre, perfil, area, zona, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		nu := user.NewUser{
			Email:           email,
			RUT:             rut,
			Nombre:          nombre,
			Perfil:          perfil,
			Area:            area,
			Zona:            zona,
			Password:        pwd,
			PasswordConfirm: pwd,
		}
		if _, err := cli.usrSvc.Create(ctx, nu); err != nil {
			return err
		}
		return nil
	}

	// existing user: refresh profile data and password
	usr.RUT = user.CleanRUT(rut)
	usr.Nombre = core.CleanString(nombre)
	usr.Perfil = core.CleanString(perfil)
	if area = core.CleanString(area); area != "" {
		usr.Area = null.StringFrom(area)
	}
	if zona = core.CleanString(zona); zona != "" {
		usr.Zona = null.StringFrom(zona)
	}
	if err := usr.SetPassword(pwd, cli.conf.Security.BcryptCost); err != nil {
		return err
	}
	active := true
	if _, err := cli.usrRepo.UpdateUser(ctx, usr, &active); err != nil {
		return err
	}
	return nil
}
