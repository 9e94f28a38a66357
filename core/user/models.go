package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/tqwops/fieldops/core"
)

// Perfiles
const (
	PerfilTecnico       = "Tecnico"
	PerfilSupervisor    = "Supervisor"
	PerfilAdministrador = "Administrador"

	// PerfilTodos is the wildcard marker used in notification targeting only;
	// it is never assigned to a user.
	PerfilTodos = "TODOS"
)

var AllPerfiles = []string{PerfilTecnico, PerfilSupervisor, PerfilAdministrador}

type User struct {
	ID           int         `json:"id" db:"id"`
	Email        string      `json:"email" db:"email"`
	RUT          string      `json:"rut" db:"rut"`
	Nombre       string      `json:"nombre" db:"nombre"`
	Perfil       string      `json:"perfil" db:"perfil"`
	Area         null.String `json:"area" db:"area"`
	Zona         null.String `json:"zona" db:"zona"`
	IsActive     bool        `json:"-" db:"is_active"`
	PasswordHash []byte      `json:"-" db:"password_hash"`
	CreatedAt    time.Time   `json:"-" db:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"-" db:"updated_at"` // UTC
	LastLogin    null.Time   `json:"-" db:"last_login"` // UTC
}

// SetPassword hashes pwd with the given bcrypt cost. A cost below
// bcrypt.MinCost falls back to bcrypt.DefaultCost.
func (u *User) SetPassword(pwd string, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), cost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// HasPerfil reports whether the user's perfil contains `perfil`, case-insensitively.
// Perfil values may carry qualifiers (eg. "Supervisor Zona Norte"), hence the
// substring match.
func (u *User) HasPerfil(perfil string) bool {
	return strings.Contains(strings.ToLower(u.Perfil), strings.ToLower(perfil))
}

func (u *User) IsSupervisor() bool {
	return u.HasPerfil(PerfilSupervisor) || u.IsAdmin()
}

func (u *User) IsAdmin() bool {
	return u.HasPerfil(PerfilAdministrador)
}

func (u *User) IsTecnico() bool {
	return u.HasPerfil(PerfilTecnico)
}

// HomePath is the landing route for the user after login.
func (u *User) HomePath() string {
	if u.IsSupervisor() {
		return "/supervisor"
	}
	return "/"
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Email           string `json:"email" validate:"required,email"`
	RUT             string `json:"rut" validate:"required,rut"`
	Nombre          string `json:"nombre" validate:"required"`
	Perfil          string `json:"perfil" validate:"required,perfil"`
	Area            string `json:"area"`
	Zona            string `json:"zona"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.RUT = CleanRUT(nu.RUT)
	nu.Nombre = core.CleanString(nu.Nombre)
	nu.Perfil = core.CleanString(nu.Perfil)
	nu.Area = core.CleanString(nu.Area)
	nu.Zona = core.CleanString(nu.Zona)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email, nu.RUT)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Email           string `json:"email" validate:"omitempty,email"`
	RUT             string `json:"rut" validate:"omitempty,rut"`
	Nombre          string `json:"nombre"`
	Perfil          string `json:"perfil" validate:"omitempty,perfil"`
	Area            *string `json:"area"`
	Zona            *string `json:"zona"`
	IsActive        *bool   `json:"is_active"`
	Password        string  `json:"password" validate:"omitempty"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate, origUsr User, svc *Service) error {
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if rut := CleanRUT(uu.RUT); rut != "" {
		uu.RUT = rut
	} else {
		uu.RUT = origUsr.RUT
	}
	if nombre := core.CleanString(uu.Nombre); nombre != "" {
		uu.Nombre = nombre
	} else {
		uu.Nombre = origUsr.Nombre
	}
	if perfil := core.CleanString(uu.Perfil); perfil != "" {
		uu.Perfil = perfil
	} else {
		uu.Perfil = origUsr.Perfil
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Email, uu.RUT, origUsr)
}

type QueryFilter struct {
	// Search does a case-insensitive match on one of Nombre, Email or RUT.
	Search   string `query:"search"`
	Perfil   string `query:"perfil"`
	Area     string `query:"area"`
	Zona     string `query:"zona"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Perfil == "" && qf.Area == "" && qf.Zona == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Perfil = core.CleanString(qf.Perfil)
	qf.Area = core.CleanString(qf.Area)
	qf.Zona = core.CleanString(qf.Zona)
}
