package user

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/tqwops/fieldops/core"
)

var (
	rutTag  = "rut"
	rutText = "invalid RUT"

	perfilTag  = "perfil"
	perfilText = "invalid perfil"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"
)

func init() {
	// register validators
	_ = core.Validate.RegisterValidation(rutTag, rutValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, rutTag, rutText)

	_ = core.Validate.RegisterValidation(perfilTag, perfilValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, perfilTag, perfilText)

	core.Validate.RegisterStructValidation(userStructValidation, NewUser{})
	core.Validate.RegisterStructValidation(userStructValidation, UpdateUser{})
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdAttrSimTag, pwdAttrSimText)
}

// CleanRUT strips separator dots and whitespace from a Chilean RUT and
// uppercases a trailing K, keeping the "12345678-5" form.
func CleanRUT(rut string) string {
	rut = strings.TrimSpace(rut)
	rut = strings.ReplaceAll(rut, ".", "")
	rut = strings.ReplaceAll(rut, " ", "")
	return strings.ToUpper(rut)
}

// ValidRUT checks a Chilean RUT ("body-check digit") against its mod 11 check digit.
func ValidRUT(rut string) bool {
	parts := strings.Split(CleanRUT(rut), "-")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 1 {
		return false
	}
	body, check := parts[0], parts[1]

	sum, factor := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		d := body[i]
		if d < '0' || d > '9' {
			return false
		}
		sum += int(d-'0') * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}

	var expected string
	switch rem := 11 - (sum % 11); rem {
	case 11:
		expected = "0"
	case 10:
		expected = "K"
	default:
		expected = fmt.Sprintf("%d", rem)
	}
	return check == expected
}

// Custom Validators

func rutValidation(fl validator.FieldLevel) bool {
	return ValidRUT(fl.Field().String())
}

// perfilValidation checks that the provided perfil starts with a known perfil.
func perfilValidation(fl validator.FieldLevel) bool {
	perfil := strings.ToLower(fl.Field().String())
	for _, p := range AllPerfiles {
		if strings.HasPrefix(perfil, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// userStructValidation does struct level validation on NewUser and UpdateUser structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		validatePassword(usr.Password, usr.Nombre, usr.Email, usr.RUT, sl)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, usr.Nombre, usr.Email, usr.RUT, sl)
		}
	}
}

// validatePassword applies the password policy to the provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - no user attrs similarity
func validatePassword(pwd, nombre, email, rut string, sl validator.StructLevel) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	pwdLen := len(pwd)
	if pwdLen < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}

	var digitCount int
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == pwdLen {
		reportErr(pwdNotAllNumTag)
		return
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(usrAttr, "")).QuickRatio()
	}
	if getRatio(pwd, nombre) >= pwdMaxSim ||
		getRatio(pwd, email) >= pwdMaxSim ||
		getRatio(pwd, rut) >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
		return
	}
}
