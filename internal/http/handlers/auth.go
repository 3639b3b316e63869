package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tiretrack/server/internal/auth"
	"github.com/tiretrack/server/internal/middleware"
	"github.com/tiretrack/server/internal/model"
)

// AuthGateway is the part of *auth.Gateway the handlers use.
type AuthGateway interface {
	RequestOTP(ctx context.Context, phone string) (auth.RequestOTPResult, error)
	VerifyOTP(ctx context.Context, phone, code string) (auth.VerifyOTPResult, error)
	Logout(ctx context.Context, tokens ...string) (auth.LogoutResult, error)
	IssueAccessToken(p *auth.Principal) (auth.AccessTokenResult, error)
	UpdateDisplayName(ctx context.Context, userID uuid.UUID, name *string) (model.User, error)
}

// CookieConfig holds the session cookie attributes
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	gateway AuthGateway
	cookie  CookieConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(gateway AuthGateway, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{gateway: gateway, cookie: cookie}
}

// requestOTPRequest is the request body for POST /auth/request_otp
type requestOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// verifyOTPRequest is the request body for POST /auth/verify_otp
type verifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

// logoutRequest is the optional request body for POST /auth/logout
type logoutRequest struct {
	SessionToken string `json:"session_token"`
}

// updateMeRequest is the request body for PATCH /me
type updateMeRequest struct {
	DisplayName *string `json:"display_name"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID          string  `json:"id"`
	PhoneNumber string  `json:"phone_number"`
	DisplayName *string `json:"display_name,omitempty"`
}

// HandleRequestOTP handles POST /auth/request_otp
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.gateway.RequestOTP(r.Context(), req.PhoneNumber)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, res)
	case errors.Is(err, auth.ErrInvalidInput):
		respondWithJSON(w, http.StatusBadRequest, res)
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(res.CooldownSeconds))
		respondWithJSON(w, http.StatusTooManyRequests, res)
	case errors.Is(err, auth.ErrDeliveryFailed):
		respondWithJSON(w, http.StatusBadGateway, res)
	default:
		respondWithJSON(w, http.StatusInternalServerError, res)
	}
}

// HandleVerifyOTP handles POST /auth/verify_otp. On success the session
// token is returned in the body and set as the session cookie.
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.gateway.VerifyOTP(r.Context(), req.PhoneNumber, req.Code)
	switch {
	case err == nil:
		h.setSessionCookie(w, res.SessionToken)
		respondWithJSON(w, http.StatusOK, res)
	case errors.Is(err, auth.ErrInvalidInput):
		respondWithJSON(w, http.StatusBadRequest, res)
	case errors.Is(err, auth.ErrInvalidCode):
		respondWithJSON(w, http.StatusUnauthorized, res)
	default:
		respondWithJSON(w, http.StatusInternalServerError, res)
	}
}

// HandleLogout handles POST /auth/logout. Every token the caller presents
// (body, Bearer header, session cookie) is logged out.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var tokens []string
	for _, t := range []string{req.SessionToken, middleware.BearerToken(r), middleware.CookieToken(r, h.cookie.Name)} {
		if t != "" && !slices.Contains(tokens, t) {
			tokens = append(tokens, t)
		}
	}

	res, err := h.gateway.Logout(r.Context(), tokens...)
	if err != nil {
		log.Printf("Failed to log out: %v", err)
		respondWithJSON(w, http.StatusInternalServerError, res)
		return
	}

	h.clearSessionCookie(w)
	respondWithJSON(w, http.StatusOK, res)
}

// HandleAccessToken handles POST /auth/token (protected)
func (h *AuthHandler) HandleAccessToken(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	res, err := h.gateway.IssueAccessToken(p)
	if err != nil {
		log.Printf("Failed to issue access token: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to issue access token")
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// HandleMe handles GET /me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, toUserResponse(*user))
}

// HandleUpdateMe handles PATCH /me (protected)
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.gateway.UpdateDisplayName(r.Context(), user.ID, req.DisplayName)
	if errors.Is(err, auth.ErrInvalidInput) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("Failed to update user %s: %v", user.ID, err)
		respondWithError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	respondWithJSON(w, http.StatusOK, toUserResponse(updated))
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:          u.ID.String(),
		PhoneNumber: u.PhoneNumber,
		DisplayName: u.DisplayName,
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]any{"success": false, "error": message})
}
