package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stemsi/webexam/internal/model"
)

// UserRepository handles user account data access.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, first_name, last_name, email, password_hash, role, is_active, created_at, updated_at`

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int) (*model.User, error) {
	return r.get(ctx, "user.get", `id = $1`, id)
}

// GetByEmail retrieves a user by their unique (case-insensitive) email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.get(ctx, "user.get_by_email", `email = $1`, strings.ToLower(email))
}

func scanUser(row pgx.Row, u *model.User) error {
	return row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepository) get(ctx context.Context, op, where string, arg any) (*model.User, error) {
	u := &model.User{}
	err := r.db.run(ctx, op, func(ctx context.Context) error {
		return scanUser(r.db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg), u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// List retrieves every user ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.run(ctx, "user.list", func(ctx context.Context) error {
		rows, err := r.db.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
		if err != nil {
			return err
		}
		users, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
			var u model.User
			err := scanUser(row, &u)
			return u, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// SetActive enables or disables login for a user.
func (r *UserRepository) SetActive(ctx context.Context, id int, active bool) error {
	return r.update(ctx, "user.set_active", `is_active = $1`, active, id)
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int, hash string) error {
	return r.update(ctx, "user.update_password", `password_hash = $1`, hash, id)
}

func (r *UserRepository) update(ctx context.Context, op, set string, value any, id int) error {
	return r.db.run(ctx, op, func(ctx context.Context) error {
		tag, err := r.db.pool.Exec(ctx,
			`UPDATE users SET `+set+`, updated_at = $2 WHERE id = $3`, value, time.Now(), id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Create inserts a new user. A taken email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(u.Email)
	return r.db.run(ctx, "user.create", func(ctx context.Context) error {
		return r.db.pool.QueryRow(ctx,
			`INSERT INTO users (first_name, last_name, email, password_hash, role, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at, updated_at`,
			u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role, u.IsActive,
		).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	})
}
