package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/web/middleware"
)

// AuthHandler handles login and token issuance.
type AuthHandler struct {
	users  database.UserStore
	tokens *middleware.TokenManager
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users database.UserStore, tokens *middleware.TokenManager) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

// Login verifies credentials and returns a signed token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		log.Printf("login lookup failed for %s: %v", sanitizeForLog(req.Username), err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		log.Printf("token issuance failed for %s: %v", sanitizeForLog(req.Username), err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		Username: user.Username,
		Role:     string(user.Role),
		FullName: user.FullName,
	})
}

// Me returns the authenticated identity.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"username":   claims.Username,
		"role":       claims.Role,
		"student_id": claims.StudentID,
	})
}
