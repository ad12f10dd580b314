package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/account"
	"github.com/iliyamo/ambulance-dispatch/internal/config"
	"github.com/iliyamo/ambulance-dispatch/internal/middleware"
	"github.com/iliyamo/ambulance-dispatch/internal/model"
	"github.com/iliyamo/ambulance-dispatch/internal/repository"
	"github.com/iliyamo/ambulance-dispatch/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Accounts *account.Service
	Tokens   repository.TokenStore
	Log      *zap.Logger
}

func NewAuthHandler(cfg config.Config, accounts *account.Service, tokens repository.TokenStore, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Cfg: cfg, Accounts: accounts, Tokens: tokens, Log: log.Named("auth")}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // patient | driver
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       uint64     `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// Register creates a patient or driver account.  Drivers get their
// ambulance in the same step.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.Register(ctx, account.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": toUserPart(u)})
}

// Login verifies credentials, returns a fresh token pair and sets the
// session cookie to the access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	resp, err := h.issue(c, u)
	if err != nil {
		return respondError(c, err)
	}
	h.Log.Info("login", zap.Uint64("user_id", u.ID), zap.String("role", string(u.Role)))
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		h.Log.Warn("revoke refresh token failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
	u, err := h.Accounts.Profile(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}
	resp, err := h.issue(c, u)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes every refresh token of the current user, clears the
// session cookie and sends the browser to the login page.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		h.Log.Error("logout failed", zap.Uint64("user_id", uid), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	c.SetCookie(h.sessionCookie("", time.Unix(0, 0)))
	return c.Redirect(http.StatusFound, "/login")
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.Profile(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	out := echo.Map{"user": toUserPart(u)}
	if u.Location != nil {
		out["location"] = u.Location
	}
	return c.JSON(http.StatusOK, out)
}

// issue signs an access token, stores a new refresh token and sets the
// session cookie.
func (h *AuthHandler) issue(c echo.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role), h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(c.Request().Context(), u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	c.SetCookie(h.sessionCookie(access.Token, access.Exp))
	return authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

func (h *AuthHandler) sessionCookie(value string, exp time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.Cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		ck.MaxAge = -1
	}
	return ck
}
