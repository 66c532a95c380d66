package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sogshop/storefront/internal/models"
)

// UserService handles registration and login
type UserService interface {
	Register(ctx context.Context, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
}

// UserHandler represents HTTP handler for user-related requests
type UserHandler struct {
	svc UserService
}

// NewUserHandler creates new UserHandler instance
func NewUserHandler(svc UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterUser registers a new customer and sets the session cookie
// 200 — пользователь зарегистрирован и аутентифицирован;
// 400 — неверный формат запроса;
// 409 — email уже занят;
// 500 — внутренняя ошибка сервера.
func (uh *UserHandler) RegisterUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		token, err := uh.svc.Register(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, models.ErrConflictData) {
				http.Error(w, "email already registered", http.StatusConflict)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		setAuthCookie(w, token)
		w.WriteHeader(http.StatusOK)
	}
}

// LoginUser authenticates a customer and sets the session cookie
// 200 — пользователь аутентифицирован;
// 400 — неверный формат запроса;
// 401 — неверная пара логин/пароль;
// 500 — внутренняя ошибка сервера.
func (uh *UserHandler) LoginUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		token, err := uh.svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, models.ErrInvalidCredentials) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		setAuthCookie(w, token)
		w.WriteHeader(http.StatusOK)
	}
}

func setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
