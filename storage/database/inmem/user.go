package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/tqwops/fieldops/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Nombre < users[j].Nombre })
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, email, rut string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := func(usr user.User) bool {
		for _, ex := range excludedUsers {
			if ex.ID == usr.ID {
				return true
			}
		}
		return false
	}

	for _, usr := range repo.query() {
		if excluded(usr) {
			continue
		}
		if strings.EqualFold(usr.Email, email) {
			return user.ErrEmailExists
		}
		if strings.EqualFold(usr.RUT, rut) {
			return user.ErrRUTExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.seq++
	usr.ID = repo.db.seq
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(_ context.Context) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id int) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.db.table[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.table {
		if strings.EqualFold(usr.Email, email) {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	match := func(usr user.User) bool {
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(usr.Nombre), s) &&
				!strings.Contains(strings.ToLower(usr.Email), s) &&
				!strings.Contains(strings.ToLower(usr.RUT), s) {
				return false
			}
		}
		if filter.Perfil != "" && !usr.HasPerfil(filter.Perfil) {
			return false
		}
		if filter.Area != "" && usr.Area.String != filter.Area {
			return false
		}
		if filter.Zona != "" && usr.Zona.String != filter.Zona {
			return false
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			return false
		}
		return true
	}

	var users []user.User
	for _, usr := range repo.query() {
		if match(usr) {
			users = append(users, usr)
		}
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, isActive *bool) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	orig.Email = usr.Email
	orig.RUT = usr.RUT
	orig.Nombre = usr.Nombre
	orig.Perfil = usr.Perfil
	if usr.Area.Valid {
		orig.Area = usr.Area
	}
	if usr.Zona.Valid {
		orig.Zona = usr.Zona
	}
	if len(usr.PasswordHash) > 0 {
		orig.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = usr.UpdatedAt
	return *orig, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func (repo *userRepository) SetLastLogin(_ context.Context, id int, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.table[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.LastLogin.SetValid(at)
	return nil
}
