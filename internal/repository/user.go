package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sogshop/storefront/internal/models"
	"github.com/sogshop/storefront/internal/repository/postgres"
)

const (
	insertUserQuery = `
						INSERT INTO users (id, email, password_hash)
						VALUES ($1, $2, $3)
						RETURNING created_at
`
	selectUserByEmailQuery = `
						SELECT id, email, password_hash, created_at
						FROM users
						WHERE email = $1
`
)

// UserRepository implements user persistence over postgres
type UserRepository struct {
	db *postgres.DB
}

// NewUserRepository creates new UserRepository instance
func NewUserRepository(db *postgres.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new user
func (ur *UserRepository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	err := ur.db.QueryRow(ctx, insertUserQuery, user.ID, user.Email, user.PasswordHash).Scan(&user.CreatedAt)
	if err != nil {
		if errCode := ur.db.ErrorCode(err); errCode == pgErrUniqueViolationCode {
			return nil, models.ErrConflictData
		}
		return nil, err
	}

	return user, nil
}

// GetUserByEmail returns a user by email
func (ur *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := models.User{}
	err := ur.db.QueryRow(ctx, selectUserByEmailQuery, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return &user, nil
}
