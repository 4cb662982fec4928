package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloudprime/internal/server/auth"
	"cloudprime/internal/server/database"

	"github.com/google/uuid"
)

// Session is the result of a successful sign-in.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *database.User
}

// Profile is the signed-in user together with their API keys.
type Profile struct {
	User *database.User
	Keys []*database.APIKey
}

// RegisterInput carries the fields of a sign-up request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// ProfileUpdate carries optional profile changes; nil fields are left alone.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// IdentityService owns accounts, their verification and sign-in.
type IdentityService struct {
	users  UserStore
	keys   APIKeyStore
	tokens *auth.TokenIssuer
	mail   Notifier
	now    func() time.Time
}

// NewIdentityService creates a new identity service.
func NewIdentityService(users UserStore, keys APIKeyStore, tokens *auth.TokenIssuer, mail Notifier) *IdentityService {
	return &IdentityService{
		users:  users,
		keys:   keys,
		tokens: tokens,
		mail:   mail,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an unverified account and mails it a verification code.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*database.User, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &database.User{
		ID:               uuid.New(),
		Name:             name,
		Email:            email,
		PasswordHash:     hash,
		Role:             database.RoleUser,
		MonthlyResetDate: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	code, err := s.assignOTP(user)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	slog.Info("user registered", "user_id", user.ID, "email", user.Email)
	s.sendOTP(ctx, user, code)
	return user, nil
}

// VerifyOTP marks the account verified when code matches an unexpired OTP
// and signs the user in.
func (s *IdentityService) VerifyOTP(ctx context.Context, email, code string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidOTP
		}
		return nil, err
	}

	now := s.now()
	if user.OTPExpiresAt == nil || !now.Before(*user.OTPExpiresAt) || !auth.OTPMatches(user.OTP, code) {
		return nil, ErrInvalidOTP
	}

	user.IsVerified = true
	user.OTP = nil
	user.OTPExpiresAt = nil
	if err := saveUser(ctx, s.users, user, now); err != nil {
		return nil, err
	}

	slog.Info("user verified", "user_id", user.ID)
	return s.newSession(user)
}

// ResendOTP replaces the pending verification code of an unverified account.
func (s *IdentityService) ResendOTP(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	code, err := s.assignOTP(user)
	if err != nil {
		return err
	}
	if err := saveUser(ctx, s.users, user, s.now()); err != nil {
		return err
	}
	s.sendOTP(ctx, user, code)
	return nil
}

// Login checks credentials. An unverified account gets a fresh code and
// ErrUnverifiedAccount.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if !user.IsVerified {
		code, err := s.assignOTP(user)
		if err != nil {
			return nil, err
		}
		if err := saveUser(ctx, s.users, user, now); err != nil {
			return nil, err
		}
		s.sendOTP(ctx, user, code)
		return nil, ErrUnverifiedAccount
	}

	user.LastLoginAt = &now
	user.LoginCount++
	if err := saveUser(ctx, s.users, user, now); err != nil {
		return nil, err
	}

	slog.Info("user logged in", "user_id", user.ID, "login_count", user.LoginCount)
	return s.newSession(user)
}

// ForgotPassword stores the hash of a fresh reset token and mails the raw
// token to the account owner.
func (s *IdentityService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	token, hash, err := auth.GenerateResetToken()
	if err != nil {
		return err
	}
	now := s.now()
	expires := now.Add(auth.ResetValidity)
	user.ResetTokenHash = &hash
	user.ResetExpiresAt = &expires
	if err := saveUser(ctx, s.users, user, now); err != nil {
		return err
	}

	if err := s.mail.SendPasswordReset(ctx, user.Email, user.Name, token, auth.ResetValidity); err != nil {
		slog.Error("failed to send password reset email", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword sets a new password when token matches an unexpired reset
// request. The stored reset token is cleared whether or not it was still valid.
func (s *IdentityService) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	user, err := s.users.GetByResetTokenHash(ctx, auth.HashResetToken(token))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	now := s.now()
	valid := user.ResetExpiresAt != nil && now.Before(*user.ResetExpiresAt)
	if valid {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
	}
	user.ResetTokenHash = nil
	user.ResetExpiresAt = nil
	if err := saveUser(ctx, s.users, user, now); err != nil {
		return err
	}

	if !valid {
		return ErrInvalidResetToken
	}
	slog.Info("password reset", "user_id", user.ID)
	return nil
}

// Authenticate resolves a session token to a verified account.
func (s *IdentityService) Authenticate(ctx context.Context, rawToken string) (*database.User, error) {
	if rawToken == "" {
		return nil, ErrNotAuthenticated
	}
	id, err := s.tokens.Verify(rawToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	if !user.IsVerified {
		return nil, ErrAccountNotVerified
	}
	return user, nil
}

// Me reloads the account and lists its API keys.
func (s *IdentityService) Me(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Keys: keys}, nil
}

// UpdateProfile changes name and/or email. A new email drops verification
// and mails a code to the new address. It reports whether the email changed.
func (s *IdentityService) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (*database.User, bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}

	if upd.Name != nil {
		name, err := validateName(*upd.Name)
		if err != nil {
			return nil, false, err
		}
		user.Name = name
	}

	var code string
	emailChanged := false
	if upd.Email != nil && *upd.Email != "" {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return nil, false, err
		}
		if email != user.Email {
			other, err := s.users.GetByEmail(ctx, email)
			switch {
			case err == nil && other.ID != user.ID:
				return nil, false, ErrEmailInUse
			case err != nil && !errors.Is(err, database.ErrNotFound):
				return nil, false, err
			}

			user.Email = email
			user.IsVerified = false
			if code, err = s.assignOTP(user); err != nil {
				return nil, false, err
			}
			emailChanged = true
		}
	}

	if err := saveUser(ctx, s.users, user, s.now()); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, false, ErrEmailInUse
		}
		return nil, false, err
	}
	if emailChanged {
		s.sendOTP(ctx, user, code)
	}
	return user, emailChanged, nil
}

// TokenLifetime is how long issued session tokens stay valid.
func (s *IdentityService) TokenLifetime() time.Duration {
	return s.tokens.Lifetime()
}

func (s *IdentityService) newSession(user *database.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

func (s *IdentityService) assignOTP(user *database.User) (string, error) {
	code, err := auth.GenerateOTP()
	if err != nil {
		return "", err
	}
	expires := s.now().Add(auth.OTPValidity)
	user.OTP = &code
	user.OTPExpiresAt = &expires
	return code, nil
}

// sendOTP delivers a verification code. Delivery failures are logged only.
func (s *IdentityService) sendOTP(ctx context.Context, user *database.User, code string) {
	if err := s.mail.SendOTP(ctx, user.Email, user.Name, code, auth.OTPValidity); err != nil {
		slog.Error("failed to send verification email", "user_id", user.ID, "error", err)
	}
}
