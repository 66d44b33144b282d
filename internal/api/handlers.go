package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"portal.health/patient-portal/internal/auth"
	"portal.health/patient-portal/internal/core"
)

type APIHandler struct {
	userService     *core.UserService
	cartService     *core.CartService
	activityService *core.ActivityService
	validate        *validator.Validate
}

func NewAPIHandler(us *core.UserService, cs *core.CartService, as *core.ActivityService) *APIHandler {
	return &APIHandler{
		userService:     us,
		cartService:     cs,
		activityService: as,
		validate:        validator.New(),
	}
}

type ctxKey int

const (
	userIDKey ctxKey = iota
	externalUserIDKey
)

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := h.userService.GetUserByExternalID(r.Context(), externalUserID)
		if err != nil {
			slog.Error("Failed to resolve user in auth middleware", "external_user_id", externalUserID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		ctx = context.WithValue(ctx, externalUserIDKey, user.ExternalUserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeRequest decodes a JSON body into dst and validates its struct tags.
func (h *APIHandler) decodeRequest(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid field %s: failed on %q", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

// respondError maps service errors onto HTTP statuses. Unknown errors are logged and
// reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrProductNotFound),
		errors.Is(err, core.ErrCartItemNotFound),
		errors.Is(err, core.ErrNoActiveSession):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrOutOfStock),
		errors.Is(err, core.ErrNotEnoughStock),
		errors.Is(err, core.ErrSessionExists),
		errors.Is(err, core.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInvalidQuantity),
		errors.Is(err, core.ErrInvalidCategory):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrGeneration):
		slog.Warn("Text generation failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, core.ErrGeneration.Error())
		return
	}

	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

type SignupRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := h.decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("Failed to hash password", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	user, err := h.userService.CreateUser(r.Context(), req.UserID, hashedPassword)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetUserByExternalID(r.Context(), req.UserID)
	if err != nil {
		slog.Error("Failed to get user", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		slog.Error("Failed to generate JWT", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
