package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/foothill/blog/internal/forms"
	"github.com/foothill/blog/internal/logging"
	"github.com/foothill/blog/internal/storage"
	"github.com/foothill/blog/internal/user"
)

// Auth events reported to the EventRecorder
const (
	EventRegister       = "register"
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventLogout         = "logout"
	EventResetRequested = "reset_requested"
	EventResetCompleted = "reset_completed"
	EventAccountUpdated = "account_updated"
)

// mailTimeout bounds one background reset mail delivery
const mailTimeout = 30 * time.Second

var allowedPictureExtensions = []string{"jpg", "jpeg", "png"}

// Dependencies are the collaborators of the account workflow.
// Throttle and Events may be nil.
type Dependencies struct {
	Users    UserStore
	Hasher   PasswordHasher
	Tokens   ResetTokenCodec
	Sessions SessionManager
	Mailer   Mailer
	Pictures PictureStore
	Throttle ResetThrottle
	Events   EventRecorder
}

// Service implements registration, login, logout, account update and password reset
type Service struct {
	users    UserStore
	hasher   PasswordHasher
	tokens   ResetTokenCodec
	sessions SessionManager
	mailer   Mailer
	pictures PictureStore
	throttle ResetThrottle
	events   EventRecorder

	baseURL  string
	resetTTL time.Duration

	// dummyHash is verified against when a login email is unknown, so both
	// failure paths cost one hash computation
	dummyHash string

	mail sync.WaitGroup
}

// NewService builds the workflow. baseURL prefixes reset links; resetTTL is
// only quoted in the reset mail, the codec enforces it.
func NewService(deps Dependencies, baseURL string, resetTTL time.Duration) (*Service, error) {
	dummyHash, err := deps.Hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &Service{
		users:     deps.Users,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		sessions:  deps.Sessions,
		mailer:    deps.Mailer,
		pictures:  deps.Pictures,
		throttle:  deps.Throttle,
		events:    deps.Events,
		baseURL:   baseURL,
		resetTTL:  resetTTL,
		dummyHash: dummyHash,
	}, nil
}

// RegisterInput is the submitted registration form
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

func (in RegisterInput) Validate() forms.Errors {
	errs := forms.Errors{}
	errs.Check("username", usernameChecks(in.Username)...)
	errs.Check("email", emailChecks(in.Email)...)
	errs.Check("password", forms.Required(in.Password))
	errs.Check("confirm_password", forms.Required(in.ConfirmPassword), forms.EqualTo(in.ConfirmPassword, in.Password, "password"))
	return errs
}

func usernameChecks(v string) []string {
	return []string{
		forms.Required(v),
		forms.Length(v, user.MinUsernameLength, user.MaxUsernameLength),
		forms.ExcludesAny(v, user.UsernameReservedChars),
	}
}

func emailChecks(v string) []string {
	return []string{forms.Required(v), forms.MaxLength(v, user.MaxEmailLength), forms.Email(v)}
}

// Register creates a new account. Uniqueness is pre-checked for friendly
// field messages; a collision at commit comes back as user.ErrDuplicateUsername
// or user.ErrDuplicateEmail.
func (s *Service) Register(ctx context.Context, viewer Identity, in RegisterInput) (*user.User, error) {
	if viewer.Authenticated() {
		return nil, ErrAlreadyAuthenticated
	}

	errs := in.Validate()
	if !errs.Any() {
		if err := s.checkAvailable(ctx, errs, in.Username, in.Email); err != nil {
			return nil, err
		}
	}
	if errs.Any() {
		return nil, &forms.ValidationError{Errors: errs}
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, in.Username, in.Email, passwordHash)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateUsername) || errors.Is(err, user.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.record(EventRegister)
	return newUser, nil
}

// LoginInput is the submitted login form
type LoginInput struct {
	Email    string
	Password string
	Remember bool
}

func (in LoginInput) Validate() forms.Errors {
	errs := forms.Errors{}
	errs.Check("email", emailChecks(in.Email)...)
	errs.Check("password", forms.Required(in.Password))
	return errs
}

// Login verifies credentials and starts a session. Unknown email and wrong
// password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, viewer Identity, in LoginInput) (*Session, error) {
	if viewer.Authenticated() {
		return nil, ErrAlreadyAuthenticated
	}
	if errs := in.Validate(); errs.Any() {
		return nil, &forms.ValidationError{Errors: errs}
	}

	existingUser, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.Verify(s.dummyHash, in.Password)
			s.record(EventLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(existingUser.PasswordHash, in.Password) {
		s.record(EventLoginFailure)
		return nil, ErrInvalidCredentials
	}

	sess, err := s.sessions.Create(ctx, existingUser.ID, in.Remember)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.record(EventLoginSuccess)
	return sess, nil
}

// Logout ends the viewer's session. Without a session it does nothing.
func (s *Service) Logout(ctx context.Context, viewer Identity) error {
	if viewer.SessionToken == "" {
		return nil
	}
	if err := s.sessions.Destroy(ctx, viewer.SessionToken); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	s.record(EventLogout)
	return nil
}

// CurrentUser loads the viewer's account
func (s *Service) CurrentUser(ctx context.Context, viewer Identity) (*user.User, error) {
	if !viewer.Authenticated() {
		return nil, ErrAuthRequired
	}

	u, err := s.users.GetByID(ctx, viewer.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrAuthRequired
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Upload is an uploaded file
type Upload struct {
	Filename string
	Data     []byte
}

// UpdateAccountInput is the submitted account form. Picture is nil when no file was chosen.
type UpdateAccountInput struct {
	Username string
	Email    string
	Picture  *Upload
}

// UpdateAccount changes username, email and optionally the profile picture of the viewer
func (s *Service) UpdateAccount(ctx context.Context, viewer Identity, in UpdateAccountInput) (*user.User, error) {
	current, err := s.CurrentUser(ctx, viewer)
	if err != nil {
		return nil, err
	}

	errs := forms.Errors{}
	errs.Check("username", usernameChecks(in.Username)...)
	errs.Check("email", emailChecks(in.Email)...)
	if in.Picture != nil {
		errs.Check("picture", forms.AllowedExtension(in.Picture.Filename, allowedPictureExtensions...))
	}
	if !errs.Any() {
		username, email := in.Username, in.Email
		if username == current.Username {
			username = ""
		}
		if email == current.Email {
			email = ""
		}
		if err := s.checkAvailable(ctx, errs, username, email); err != nil {
			return nil, err
		}
	}
	if errs.Any() {
		return nil, &forms.ValidationError{Errors: errs}
	}

	changes := user.Changes{Username: in.Username, Email: in.Email}
	if in.Picture != nil {
		ref, err := s.pictures.SavePicture(ctx, in.Picture.Filename, in.Picture.Data)
		if err != nil {
			if errors.Is(err, storage.ErrUnsupportedImage) {
				errs.Add("picture", "The file is not a valid jpg or png image.")
				return nil, &forms.ValidationError{Errors: errs}
			}
			return nil, fmt.Errorf("failed to save picture: %w", err)
		}
		changes.ImageFile = &ref
	}

	updated, err := s.users.Update(ctx, current.ID, changes)
	if err != nil {
		if changes.ImageFile != nil {
			s.discardPicture(ctx, *changes.ImageFile)
		}
		if errors.Is(err, user.ErrDuplicateUsername) || errors.Is(err, user.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.record(EventAccountUpdated)
	return updated, nil
}

// discardPicture removes an upload whose account update did not commit
func (s *Service) discardPicture(ctx context.Context, ref string) {
	if err := s.pictures.DeletePicture(context.WithoutCancel(ctx), ref); err != nil {
		logging.GetLoggerFromContext(ctx).Warn("failed to remove orphaned picture", "ref", ref, "error", err.Error())
	}
}

// RequestPasswordReset mails a reset link when the address belongs to an
// account. The result is identical whether or not it does; only a malformed
// address is reported back.
func (s *Service) RequestPasswordReset(ctx context.Context, viewer Identity, email string) error {
	if viewer.Authenticated() {
		return ErrAlreadyAuthenticated
	}

	errs := forms.Errors{}
	errs.Check("email", emailChecks(email)...)
	if errs.Any() {
		return &forms.ValidationError{Errors: errs}
	}

	s.record(EventResetRequested)
	logger := logging.GetLoggerFromContext(ctx)

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			logger.Warn("failed to get user for password reset", "error", err)
		}
		return nil
	}

	if s.throttle != nil {
		allowed, err := s.throttle.AllowResetEmail(ctx, email)
		if err != nil {
			logger.Warn("failed to check reset cooldown", "error", err)
		} else if !allowed {
			logger.Info("password reset mail suppressed by cooldown", "user_id", existingUser.ID)
			return nil
		}
	}

	token, err := s.tokens.Issue(existingUser.ID)
	if err != nil {
		logger.Warn("failed to issue password reset token", "error", err)
		return nil
	}
	resetLink := fmt.Sprintf("%s/ResetPassword/%s", s.baseURL, token)

	// Delivery runs detached so response time does not depend on SMTP
	mailCtx := context.WithoutCancel(ctx)
	s.mail.Add(1)
	go func() {
		defer s.mail.Done()
		ctx, cancel := context.WithTimeout(mailCtx, mailTimeout)
		defer cancel()
		if err := s.mailer.SendPasswordResetEmail(ctx, existingUser.Email, resetLink, s.resetTTL); err != nil {
			logger.Warn("failed to send password reset email", "user_id", existingUser.ID, "error", err)
		}
	}()

	return nil
}

// VerifyResetToken resolves a reset token to its account. Tokens for accounts
// that no longer exist are invalid.
func (s *Service) VerifyResetToken(ctx context.Context, viewer Identity, token string) (*user.User, error) {
	if viewer.Authenticated() {
		return nil, ErrAlreadyAuthenticated
	}

	userID, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrInvalidResetToken
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidResetToken
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ResetPasswordInput is the submitted new-password form
type ResetPasswordInput struct {
	Password        string
	ConfirmPassword string
}

func (in ResetPasswordInput) Validate() forms.Errors {
	errs := forms.Errors{}
	errs.Check("password", forms.Required(in.Password))
	errs.Check("confirm_password", forms.Required(in.ConfirmPassword), forms.EqualTo(in.ConfirmPassword, in.Password, "password"))
	return errs
}

// ResetPassword sets a new password for the account named by token and ends
// every session of that account.
func (s *Service) ResetPassword(ctx context.Context, viewer Identity, token string, in ResetPasswordInput) error {
	u, err := s.VerifyResetToken(ctx, viewer, token)
	if err != nil {
		return err
	}
	if errs := in.Validate(); errs.Any() {
		return &forms.ValidationError{Errors: errs}
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, u.ID, passwordHash); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.sessions.DestroyAll(ctx, u.ID); err != nil {
		logging.GetLoggerFromContext(ctx).Warn("failed to revoke sessions after password reset", "user_id", u.ID, "error", err)
	}

	s.record(EventResetCompleted)
	return nil
}

// WaitForMail blocks until background reset mails have been handed to the mailer
func (s *Service) WaitForMail() {
	s.mail.Wait()
}

// checkAvailable adds field messages for a username or email already in use.
// Empty values are skipped.
func (s *Service) checkAvailable(ctx context.Context, errs forms.Errors, username, email string) error {
	if username != "" {
		_, err := s.users.GetByUsername(ctx, username)
		switch {
		case err == nil:
			errs.Add("username", "That username is taken. Please choose a different one.")
		case !errors.Is(err, user.ErrNotFound):
			return fmt.Errorf("failed to check username: %w", err)
		}
	}
	if email != "" {
		_, err := s.users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			errs.Add("email", "That email is taken. Please choose a different one.")
		case !errors.Is(err, user.ErrNotFound):
			return fmt.Errorf("failed to check email: %w", err)
		}
	}
	return nil
}

func (s *Service) record(event string) {
	if s.events != nil {
		s.events.RecordAuthEvent(event)
	}
}
