package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sqlx.DB
	conf    *core.Config
	usrRepo user.Repository
	usrSvc  *user.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -email EMAIL -rut RUT -nombre NOMBRE -perfil PERFIL [-area AREA] [-zona ZONA] - create or update a user")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
	fmt.Println("  migrate COMMAND [args] - run DB migrations (up, down, status, ...)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRUT := addUserCmd.String("rut", "", "The user's RUT.")
	addUserNombre := addUserCmd.String("nombre", "", "The user's full name.")
	addUserPerfil := addUserCmd.String("perfil", user.PerfilTecnico, "The user's perfil. The password will be prompted next.")
	addUserArea := addUserCmd.String("area", "", "The user's area.")
	addUserZona := addUserCmd.String("zona", "", "The user's zona.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserRUT == "" || *addUserNombre == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.addUser(*addUserEmail, *addUserRUT, *addUserNombre, *addUserPerfil, *addUserArea, *addUserZona, pwd)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}
