package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foothill/blog/internal/forms"
	"github.com/foothill/blog/internal/httputil"
	"github.com/foothill/blog/internal/logging"
	"github.com/foothill/blog/internal/user"
)

// Rate limit purposes
const (
	PurposeLogin        = "login"
	PurposeRegister     = "register"
	PurposeResetRequest = "reset_request"
)

const (
	msgRegistered       = "Your account has been created! You are now able to log in"
	msgLoginFailed      = "Login Unsuccessful. Please check email and password"
	msgLoginRequired    = "Please log in to access this page."
	msgAccountUpdated   = "Your account has been updated!"
	msgResetEmailSent   = "An email has been sent with instructions to reset your password."
	msgInvalidToken     = "That is an invalid or expired token"
	msgPasswordUpdated  = "Your password has been updated! You are now able to log in"
	msgUsernameTaken    = "That username is taken. Please choose a different one."
	msgEmailTaken       = "That email is taken. Please choose a different one."
	pageRegister        = "register.html"
	pageLogin           = "login.html"
	pageAccount         = "account.html"
	pageResetRequest    = "reset_request.html"
	pageResetToken      = "reset_token.html"
	titleRegister       = "Register"
	titleLogin          = "Login"
	titleAccount        = "Account"
	titleResetPassword  = "Reset Password"
	defaultRedirectPath = "/"
)

// RateLimiter throttles submissions per client IP
type RateLimiter interface {
	CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error
}

// Handler contains HTTP handlers for the account pages
type Handler struct {
	service      *Service
	renderer     *httputil.Renderer
	rateLimiter  RateLimiter
	secureCookie bool
}

// NewHandler builds the handler. rateLimiter may be nil.
func NewHandler(service *Service, renderer *httputil.Renderer, rateLimiter RateLimiter, secureCookie bool) *Handler {
	return &Handler{
		service:      service,
		renderer:     renderer,
		rateLimiter:  rateLimiter,
		secureCookie: secureCookie,
	}
}

type loginPage struct {
	Next string
}

type accountPage struct {
	User *user.User
}

type resetTokenPage struct {
	Token string
}

// RegisterPage shows the registration form
func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if IsAuthenticated(r) {
		httputil.Redirect(w, r, defaultRedirectPath)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageRegister, httputil.View{Title: titleRegister})
}

// Register handles the registration form
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, PurposeRegister) {
		return
	}

	in := RegisterInput{
		Username:        strings.TrimSpace(r.PostFormValue("username")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	values := map[string]string{"username": in.Username, "email": in.Email}

	newUser, err := h.service.Register(r.Context(), IdentityFromContext(r.Context()), in)
	if err != nil {
		var verr *forms.ValidationError
		switch {
		case errors.Is(err, ErrAlreadyAuthenticated):
			httputil.Redirect(w, r, defaultRedirectPath)
		case errors.As(err, &verr):
			logger.Info("registration rejected: validation error", "error", err.Error())
			h.renderForm(w, r, pageRegister, titleRegister, values, verr.Errors, nil)
		case errors.Is(err, user.ErrDuplicateUsername):
			logger.Warn("registration failed: username taken at commit")
			h.renderForm(w, r, pageRegister, titleRegister, values, forms.Errors{"username": {msgUsernameTaken}}, nil)
		case errors.Is(err, user.ErrDuplicateEmail):
			logger.Warn("registration failed: email taken at commit")
			h.renderForm(w, r, pageRegister, titleRegister, values, forms.Errors{"email": {msgEmailTaken}}, nil)
		default:
			logger.Error("registration failed: internal error", "error", err.Error())
			h.renderer.Error(w, r, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user registered successfully", "user_id", newUser.ID)
	httputil.SetFlash(w, httputil.FlashSuccess, msgRegistered)
	httputil.Redirect(w, r, "/login")
}

// LoginPage shows the login form
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if IsAuthenticated(r) {
		httputil.Redirect(w, r, defaultRedirectPath)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageLogin, httputil.View{
		Title: titleLogin,
		Data:  loginPage{Next: r.URL.Query().Get("next")},
	})
}

// Login handles the login form and redirects to a local next page when given
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, PurposeLogin) {
		return
	}

	in := LoginInput{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Remember: r.PostFormValue("remember") != "",
	}
	values := map[string]string{"email": in.Email}
	if in.Remember {
		values["remember"] = "y"
	}
	next := r.URL.Query().Get("next")
	page := loginPage{Next: next}

	sess, err := h.service.Login(r.Context(), IdentityFromContext(r.Context()), in)
	if err != nil {
		var verr *forms.ValidationError
		switch {
		case errors.Is(err, ErrAlreadyAuthenticated):
			httputil.Redirect(w, r, defaultRedirectPath)
		case errors.As(err, &verr):
			h.renderForm(w, r, pageLogin, titleLogin, values, verr.Errors, page)
		case errors.Is(err, ErrInvalidCredentials):
			logger.Warn("login failed: invalid credentials")
			h.renderer.Render(w, r, http.StatusOK, pageLogin, httputil.View{
				Title:   titleLogin,
				Flashes: []httputil.Flash{{Category: httputil.FlashDanger, Message: msgLoginFailed}},
				Form:    httputil.NewFormState(values, nil),
				Data:    page,
			})
		default:
			logger.Error("login failed: internal error", "error", err.Error())
			h.renderer.Error(w, r, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user logged in successfully", "user_id", sess.UserID)
	SetSessionCookie(w, sess, h.secureCookie)
	httputil.Redirect(w, r, httputil.SafeNext(next, defaultRedirectPath))
}

// Logout ends the session and returns home
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := h.service.Logout(r.Context(), IdentityFromContext(r.Context())); err != nil {
		logger.Warn("failed to destroy session", "error", err)
		// Continue - still clear the cookie
	}

	ClearSessionCookie(w, h.secureCookie)
	httputil.Redirect(w, r, defaultRedirectPath)
}

// AccountPage shows the account form prefilled with the current values
func (h *Handler) AccountPage(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	current, err := h.service.CurrentUser(r.Context(), IdentityFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, ErrAuthRequired) {
			RequireLogin(w, r)
			return
		}
		logger.Error("failed to load account", "error", err.Error())
		h.renderer.Error(w, r, http.StatusInternalServerError)
		return
	}

	values := map[string]string{"username": current.Username, "email": current.Email}
	h.renderForm(w, r, pageAccount, titleAccount, values, nil, accountPage{User: current})
}

// Account handles the account form, including an optional picture upload
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	identity := IdentityFromContext(r.Context())

	in := UpdateAccountInput{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
	}
	values := map[string]string{"username": in.Username, "email": in.Email}

	picture, err := readUpload(r, "picture")
	if err != nil {
		logger.Warn("failed to read picture upload", "error", err)
		h.renderer.Error(w, r, http.StatusBadRequest)
		return
	}
	in.Picture = picture

	updated, err := h.service.UpdateAccount(r.Context(), identity, in)
	if err != nil {
		var verr *forms.ValidationError
		var fieldErrs forms.Errors
		switch {
		case errors.Is(err, ErrAuthRequired):
			RequireLogin(w, r)
			return
		case errors.As(err, &verr):
			fieldErrs = verr.Errors
		case errors.Is(err, user.ErrDuplicateUsername):
			fieldErrs = forms.Errors{"username": {msgUsernameTaken}}
		case errors.Is(err, user.ErrDuplicateEmail):
			fieldErrs = forms.Errors{"email": {msgEmailTaken}}
		default:
			logger.Error("account update failed: internal error", "error", err.Error())
			h.renderer.Error(w, r, http.StatusInternalServerError)
			return
		}

		current, err := h.service.CurrentUser(r.Context(), identity)
		if err != nil {
			logger.Error("failed to reload account", "error", err.Error())
			h.renderer.Error(w, r, http.StatusInternalServerError)
			return
		}
		h.renderForm(w, r, pageAccount, titleAccount, values, fieldErrs, accountPage{User: current})
		return
	}

	logger.Info("account updated", "user_id", updated.ID)
	httputil.SetFlash(w, httputil.FlashSuccess, msgAccountUpdated)
	httputil.Redirect(w, r, "/account")
}

// ResetRequestPage shows the password reset request form
func (h *Handler) ResetRequestPage(w http.ResponseWriter, r *http.Request) {
	if IsAuthenticated(r) {
		httputil.Redirect(w, r, defaultRedirectPath)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageResetRequest, httputil.View{Title: titleResetPassword})
}

// ResetRequest handles the reset request form. The response is the same
// whether or not the address has an account.
func (h *Handler) ResetRequest(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, PurposeResetRequest) {
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))

	err := h.service.RequestPasswordReset(r.Context(), IdentityFromContext(r.Context()), email)
	if err != nil {
		var verr *forms.ValidationError
		switch {
		case errors.Is(err, ErrAlreadyAuthenticated):
			httputil.Redirect(w, r, defaultRedirectPath)
		case errors.As(err, &verr):
			h.renderForm(w, r, pageResetRequest, titleResetPassword, map[string]string{"email": email}, verr.Errors, nil)
		default:
			logger.Error("password reset request failed: internal error", "error", err.Error())
			h.renderer.Error(w, r, http.StatusInternalServerError)
		}
		return
	}

	httputil.SetFlash(w, httputil.FlashInfo, msgResetEmailSent)
	httputil.Redirect(w, r, "/login")
}

// ResetTokenPage shows the new password form when the token is valid
func (h *Handler) ResetTokenPage(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	token := chi.URLParam(r, "token")

	_, err := h.service.VerifyResetToken(r.Context(), IdentityFromContext(r.Context()), token)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyAuthenticated):
			httputil.Redirect(w, r, defaultRedirectPath)
		case errors.Is(err, ErrInvalidResetToken):
			logger.Info("password reset token rejected")
			httputil.SetFlash(w, httputil.FlashWarning, msgInvalidToken)
			httputil.Redirect(w, r, "/ResetPassword")
		default:
			logger.Error("password reset token check failed: internal error", "error", err.Error())
			h.renderer.Error(w, r, http.StatusInternalServerError)
		}
		return
	}

	h.renderForm(w, r, pageResetToken, titleResetPassword, nil, nil, resetTokenPage{Token: token})
}

// ResetToken handles the new password form
func (h *Handler) ResetToken(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	token := chi.URLParam(r, "token")

	in := ResetPasswordInput{
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}

	err := h.service.ResetPassword(r.Context(), IdentityFromContext(r.Context()), token, in)
	if err != nil {
		var verr *forms.ValidationError
		switch {
		case errors.Is(err, ErrAlreadyAuthenticated):
			httputil.Redirect(w, r, defaultRedirectPath)
		case errors.Is(err, ErrInvalidResetToken):
			logger.Info("password reset token rejected")
			httputil.SetFlash(w, httputil.FlashWarning, msgInvalidToken)
			httputil.Redirect(w, r, "/ResetPassword")
		case errors.As(err, &verr):
			h.renderForm(w, r, pageResetToken, titleResetPassword, nil, verr.Errors, resetTokenPage{Token: token})
		default:
			logger.Error("password reset failed: internal error", "error", err.Error())
			h.renderer.Error(w, r, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("password reset completed")
	httputil.SetFlash(w, httputil.FlashSuccess, msgPasswordUpdated)
	httputil.Redirect(w, r, "/login")
}

// RequireLogin sends an anonymous visitor to the login page, remembering
// where they were headed
func RequireLogin(w http.ResponseWriter, r *http.Request) {
	httputil.SetFlash(w, httputil.FlashInfo, msgLoginRequired)
	httputil.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()))
}

// allow applies the per-IP limit for purpose. It renders 429 and returns
// false when the limit is exceeded. Limiter failures let the request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	if h.rateLimiter == nil {
		return true
	}
	logger := logging.GetLoggerFromContext(r.Context())
	ip := httputil.ClientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		h.renderer.Error(w, r, http.StatusTooManyRequests)
		return false
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	return true
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, page, title string, values map[string]string, errs forms.Errors, data any) {
	h.renderer.Render(w, r, http.StatusOK, page, httputil.View{
		Title: title,
		Form:  httputil.NewFormState(values, errs),
		Data:  data,
	})
}

// readUpload returns the named file of a multipart form, or nil when none was chosen
func readUpload(r *http.Request, field string) (*Upload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &Upload{Filename: header.Filename, Data: data}, nil
}
