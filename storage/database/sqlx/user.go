package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core/user"
)

const userColumns = "id, email, rut, nombre, perfil, area, zona, is_active, password_hash, created_at, updated_at, last_login"

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

// trapNoRowsErr maps sql "no rows" err to user.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUniqueness(ctx context.Context, email, rut string, excludedUsers ...user.User) error {
	query := "SELECT email, rut FROM users WHERE (email = ? OR rut = ?)"
	args := []interface{}{email, rut}

	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		inQuery, inArgs, err := sqlx.In(" AND id NOT IN (?)", ids)
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
		query += inQuery
		args = append(args, inArgs...)
	}

	var match struct {
		Email string `db:"email"`
		RUT   string `db:"rut"`
	}
	err := repo.db.GetContext(ctx, &match, repo.db.Rebind(query), args...)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if strings.EqualFold(match.Email, email) {
		return user.ErrEmailExists
	}
	return user.ErrRUTExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.db.ExecContext(ctx,
		`INSERT INTO users (email, rut, nombre, perfil, area, zona, is_active, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		usr.Email, usr.RUT, usr.Nombre, usr.Perfil, usr.Area, usr.Zona,
		usr.IsActive, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting inserted user id")
	}
	usr.ID = int(id)
	return usr, nil
}

func (repo userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var users []user.User
	err := repo.db.SelectContext(ctx, &users,
		"SELECT "+userColumns+" FROM users ORDER BY nombre")
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, "getting user by id")
	}
	return usr, nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, "getting user by email")
	}
	return usr, nil
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE 1=1"
	var args []interface{}

	if filter.Search != "" {
		query += " AND (LOWER(nombre) LIKE ? OR LOWER(email) LIKE ? OR rut LIKE ?)"
		like := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, like, like, "%"+filter.Search+"%")
	}
	if filter.Perfil != "" {
		query += " AND LOWER(perfil) LIKE ?"
		args = append(args, "%"+strings.ToLower(filter.Perfil)+"%")
	}
	if filter.Area != "" {
		query += " AND area = ?"
		args = append(args, filter.Area)
	}
	if filter.Zona != "" {
		query += " AND zona = ?"
		args = append(args, filter.Zona)
	}
	if filter.IsActive != nil {
		query += " AND is_active = ?"
		args = append(args, *filter.IsActive)
	}
	query += " ORDER BY nombre"

	var users []user.User
	if err := repo.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	query := "UPDATE users SET email = ?, rut = ?, nombre = ?, perfil = ?, area = ?, zona = ?, updated_at = ?"
	args := []interface{}{usr.Email, usr.RUT, usr.Nombre, usr.Perfil, usr.Area, usr.Zona, usr.UpdatedAt}

	if len(usr.PasswordHash) > 0 {
		query += ", password_hash = ?"
		args = append(args, usr.PasswordHash)
	}
	if isActive != nil {
		query += ", is_active = ?"
		args = append(args, *isActive)
	}
	query += " WHERE id = ?"
	args = append(args, usr.ID)

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// the row may exist with identical values; make sure it is there
		if _, err := repo.GetUserByID(ctx, usr.ID); err != nil {
			return user.User{}, err
		}
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, id int, at time.Time) error {
	_, err := repo.db.ExecContext(ctx,
		"UPDATE users SET last_login = ? WHERE id = ?", at, id)
	return errors.Wrap(err, "setting last login")
}
