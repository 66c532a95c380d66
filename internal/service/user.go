package service

import (
	"context"
	"errors"

	"github.com/sogshop/storefront/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository is the user persistence the auth flows need
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// TokenService issues and verifies auth tokens
type TokenService interface {
	CreateToken(user *models.User) (string, error)
	VerifyToken(tokenString string) (*models.TokenPayload, error)
}

// UserService handles registration and login.
type UserService struct {
	repo  UserRepository
	token TokenService
}

// NewUserService creates new UserService instance
func NewUserService(repo UserRepository, token TokenService) *UserService {
	return &UserService{repo: repo, token: token}
}

// Register creates a user account and returns a session token.
func (us *UserService) Register(ctx context.Context, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	user, err := us.repo.CreateUser(ctx, &models.User{
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return "", err
	}

	return us.token.CreateToken(user)
}

// Login verifies credentials and returns a session token.
func (us *UserService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := us.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrDataNotFound) {
			return "", models.ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}

	return us.token.CreateToken(user)
}
