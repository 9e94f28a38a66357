package user

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrRUTExists          = errors.New("a user with this RUT already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrAccountLocked      = errors.New("account locked, try again later")
)

type (
	Repository interface {
		CheckUniqueness(ctx context.Context, email, rut string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		GetUserByID(ctx context.Context, id int) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		FilterUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...int) error
		SetLastLogin(ctx context.Context, id int, at time.Time) error
	}

	Service struct {
		repo Repository
		conf *core.Config

		// failed login tracking; key is the cleaned email
		mu       sync.Mutex
		attempts map[string]*loginAttempts
	}

	loginAttempts struct {
		count       int
		lockedUntil time.Time
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		conf:     conf,
		attempts: make(map[string]*loginAttempts),
	}
}

func (svc *Service) CheckUniqueness(email, rut string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(context.Background(), email, rut, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrEmailExists:
			field = "email"
		case ErrRUTExists:
			field = "rut"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Email:     nu.Email,
		RUT:       nu.RUT,
		Nombre:    nu.Nombre,
		Perfil:    nu.Perfil,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nu.Area != "" {
		usr.Area.SetValid(nu.Area)
	}
	if nu.Zona != "" {
		usr.Zona.SetValid(nu.Zona)
	}
	if err := usr.SetPassword(nu.Password, svc.conf.Security.BcryptCost); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	if filter.IsEmpty() {
		return svc.repo.QueryAllUsers(ctx)
	}
	return svc.repo.FilterUsers(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, id int, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Email:     uu.Email,
		RUT:       uu.RUT,
		Nombre:    uu.Nombre,
		Perfil:    uu.Perfil,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Area != nil {
		usr.Area.SetValid(*uu.Area)
	}
	if uu.Zona != nil {
		usr.Zona.SetValid(*uu.Zona)
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password, svc.conf.Security.BcryptCost); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	if err := svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return usr, errors.Wrap(err, "setting last login")
	}
	usr.LastLogin.SetValid(now)
	return usr, nil
}

// Authenticate checks the credentials and enforces the login lockout policy:
// after Security.MaxLoginAttempts consecutive failures the account is locked
// for Security.LockoutDuration. The counter resets on success.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	email = core.CleanString(email, true /* lower */)

	if svc.isLocked(email) {
		return User{}, ErrAccountLocked
	}

	usr, err := svc.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			svc.registerFailure(email)
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		svc.registerFailure(email)
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	svc.clearFailures(email)
	return svc.SetLastLogin(ctx, usr)
}

func (svc *Service) isLocked(email string) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	att, ok := svc.attempts[email]
	if !ok {
		return false
	}
	if att.lockedUntil.IsZero() {
		return false
	}
	if time.Now().After(att.lockedUntil) {
		delete(svc.attempts, email)
		return false
	}
	return true
}

func (svc *Service) registerFailure(email string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	att, ok := svc.attempts[email]
	if !ok {
		att = &loginAttempts{}
		svc.attempts[email] = att
	}
	att.count++
	if att.count >= svc.conf.Security.MaxLoginAttempts {
		att.lockedUntil = time.Now().Add(svc.conf.Security.LockoutDuration)
		att.count = 0
	}
}

func (svc *Service) clearFailures(email string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.attempts, email)
}
