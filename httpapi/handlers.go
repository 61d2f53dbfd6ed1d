package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/middleware"
	"github.com/MrEthical07/phoneauth/permission"
	"github.com/MrEthical07/phoneauth/response"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type sendOTPRequest struct {
	Phone string `json:"phone_number" validate:"required,min=7,max=20"`
}

type verifyOTPRequest struct {
	Phone string `json:"phone_number" validate:"required,min=7,max=20"`
	Code  string `json:"code" validate:"required,numeric,min=4,max=10"`
}

type registerRequest struct {
	Phone    string `json:"phone_number" validate:"required,min=7,max=20"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
	Role     string `json:"role" validate:"required,oneof=attendee organizer"`
}

type loginRequest struct {
	Phone    string `json:"phone_number" validate:"required,min=7,max=20"`
	Password string `json:"password" validate:"required,max=1024"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type addOrganizerRequest struct {
	UserID      string   `json:"user_id" validate:"required,max=128"`
	Role        string   `json:"role" validate:"required,oneof=owner editor viewer financial"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

type userView struct {
	ID    string `json:"id"`
	Phone string `json:"phone_number,omitempty"`
	Role  string `json:"role,omitempty"`
	State string `json:"state,omitempty"`
}

type tokenView struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             userView  `json:"user"`
}

func loginView(res phoneauth.LoginResult) tokenView {
	return tokenView{
		AccessToken:      res.Tokens.AccessToken,
		RefreshToken:     res.Tokens.RefreshToken,
		TokenType:        "bearer",
		ExpiresAt:        res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
		User: userView{
			ID:    res.User.UserID,
			Phone: res.User.Phone,
			Role:  res.User.Role,
			State: res.User.State,
		},
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var ve *validationError
	if errors.As(err, &ve) {
		response.BadRequest(w, ve.Error(), ve.fields)
		return
	}
	response.Error(w, h.logger, err)
}

// SendOTP handles POST /api/auth/send-otp.
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}

	res, err := h.engine.SendOTP(r.Context(), req.Phone)
	if err != nil {
		h.fail(w, err)
		return
	}
	response.OK(w, map[string]any{
		"message":    "OTP sent successfully",
		"phone":      res.Phone,
		"expires_at": res.ExpiresAt,
		"remaining":  res.Remaining,
	})
}

// VerifyOTP handles POST /api/auth/verify-otp. With OTP login enabled a
// successful verification returns tokens.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}

	if h.otpLogin {
		res, err := h.engine.LoginWithOTP(r.Context(), req.Phone, req.Code)
		if err != nil {
			h.fail(w, err)
			return
		}
		response.OK(w, loginView(res))
		return
	}

	if err := h.engine.VerifyOTP(r.Context(), req.Phone, req.Code); err != nil {
		h.fail(w, err)
		return
	}
	response.OK(w, map[string]any{
		"message":  "OTP verified successfully",
		"verified": true,
	})
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}

	res, err := h.engine.Register(r.Context(), h.users, phoneauth.Registration{
		Phone:    req.Phone,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, loginView(res))
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}

	res, err := h.engine.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	response.OK(w, loginView(res))
}

// Refresh handles POST /api/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}

	access, expiresAt, err := h.engine.ExchangeRefresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, err)
		return
	}
	response.OK(w, map[string]any{
		"message":      "Token refreshed successfully",
		"access_token": access,
		"token_type":   "bearer",
		"expires_at":   expiresAt,
	})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	auth, ok := phoneauth.AuthResultFromContext(r.Context())
	if !ok {
		h.fail(w, phoneauth.ErrUnauthenticated)
		return
	}
	if err := h.engine.Revoke(r.Context(), auth.UserID); err != nil {
		h.fail(w, err)
		return
	}
	response.OK(w, map[string]any{"message": "Logout successful"})
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	auth, ok := phoneauth.AuthResultFromContext(r.Context())
	if !ok {
		h.fail(w, phoneauth.ErrUnauthenticated)
		return
	}
	response.OK(w, map[string]any{
		"id":         auth.UserID,
		"role":       auth.Role,
		"state":      auth.State,
		"issued_at":  auth.IssuedAt,
		"expires_at": auth.ExpiresAt,
	})
}

// CSRFToken handles GET /api/csrf-token. The session key comes from
// X-Session-ID or is generated.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.Header.Get("X-Session-ID")
	if sessionKey == "" || len(sessionKey) > 128 {
		sessionKey = ulid.Make().String()
	}

	token, err := h.engine.IssueCSRFToken(r.Context(), sessionKey)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("X-Session-ID", sessionKey)
	response.OK(w, map[string]any{
		"token":      token,
		"session_id": sessionKey,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	latency, err := h.engine.Ping(r.Context())
	if err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		response.WriteError(w, http.StatusServiceUnavailable, phoneauth.CodeServiceUnavailable, "unhealthy", map[string]any{
			"redis": "unreachable",
		})
		return
	}
	response.OK(w, map[string]any{
		"status":           "healthy",
		"redis_latency_ms": float64(latency.Microseconds()) / 1000,
		"request_id":       middleware.RequestIDFromContext(r.Context()),
	})
}

// Access handles GET /api/events/{eventID}/access and reports the caller's
// role and permissions on the event.
func (h *Handler) Access(w http.ResponseWriter, r *http.Request) {
	auth, ok := phoneauth.AuthResultFromContext(r.Context())
	if !ok {
		h.fail(w, phoneauth.ErrUnauthenticated)
		return
	}

	res, err := h.engine.Resolve(r.Context(), auth.UserID, chi.URLParam(r, "eventID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	response.OK(w, map[string]any{
		"role":        res.Role,
		"permissions": res.Permissions.Names(),
	})
}

// AddOrganizer handles POST /api/events/{eventID}/organizers.
func (h *Handler) AddOrganizer(w http.ResponseWriter, r *http.Request) {
	var req addOrganizerRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	custom, err := permission.ParseNames(req.Permissions)
	if err != nil {
		h.fail(w, &validationError{fields: map[string]any{"permissions": err.Error()}})
		return
	}

	a := phoneauth.Assignment{
		ResourceID: chi.URLParam(r, "eventID"),
		UserID:     req.UserID,
		Role:       permission.Role(req.Role),
		Custom:     custom,
	}
	if err := h.engine.Assign(r.Context(), a); err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{
		"event_id":    a.ResourceID,
		"user_id":     a.UserID,
		"role":        a.Role,
		"permissions": a.Effective().Names(),
	})
}

// RemoveOrganizer handles DELETE /api/events/{eventID}/organizers/{userID}.
func (h *Handler) RemoveOrganizer(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Unassign(r.Context(), chi.URLParam(r, "eventID"), chi.URLParam(r, "userID")); err != nil {
		h.fail(w, err)
		return
	}
	response.OK(w, map[string]any{"message": "Organizer removed"})
}
