package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"assistify/internal/auth"
	"assistify/internal/domain"
)

var emailPattern = regexp.MustCompile(`^[\w-]+(\.[\w-]+)*@([\w-]+\.)+[a-zA-Z]{2,7}$`)

type UserStore interface {
	FindOrCreateUser(ctx context.Context, email string) (domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

type TokenIssuer interface {
	IssueVerification(userID, email, otp string) (string, error)
	Verify(verifyToken, otp string) (auth.Verification, error)
	IssueSession(userID string) (string, error)
	ParseSession(token string) (string, error)
}

type Mailer interface {
	SendOTP(ctx context.Context, email, otp string) error
}

type AuthService struct {
	users  UserStore
	tokens TokenIssuer
	mailer Mailer
}

type VerifyInput struct {
	VerifyToken string
	OTP         string
}

type VerifyOutput struct {
	Token string
	User  domain.User
}

func NewAuthService(users UserStore, tokens TokenIssuer, mailer Mailer) (*AuthService, error) {
	if users == nil {
		return nil, errors.New("usecase: user store must not be nil")
	}
	if tokens == nil {
		return nil, errors.New("usecase: token issuer must not be nil")
	}
	if mailer == nil {
		return nil, errors.New("usecase: mailer must not be nil")
	}
	return &AuthService{users: users, tokens: tokens, mailer: mailer}, nil
}

// Login mails a one-time passcode to email, creating the account on first
// use, and returns the verification token the passcode must be paired with.
func (s *AuthService) Login(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", newError(ErrorInvalidInput, "empty_email", "email is required", nil)
	}
	if !emailPattern.MatchString(email) {
		return "", newError(ErrorInvalidInput, "invalid_email", "email is not a valid address", nil)
	}

	user, err := s.users.FindOrCreateUser(ctx, email)
	if err != nil {
		return "", newError(ErrorInternal, "user_upsert_error", "Failed to start login", err)
	}
	otp, err := newOTP()
	if err != nil {
		return "", newError(ErrorInternal, "otp_generation_error", "Failed to start login", err)
	}
	verifyToken, err := s.tokens.IssueVerification(user.ID, user.Email, otp)
	if err != nil {
		return "", newError(ErrorInternal, "token_issue_error", "Failed to start login", err)
	}
	if err := s.mailer.SendOTP(ctx, user.Email, otp); err != nil {
		return "", newError(ErrorInternal, "otp_mail_error", "Failed to send verification email", err)
	}
	return verifyToken, nil
}

// Verify exchanges a verification token and its passcode for a session token.
func (s *AuthService) Verify(ctx context.Context, in VerifyInput) (VerifyOutput, error) {
	if strings.TrimSpace(in.VerifyToken) == "" || strings.TrimSpace(in.OTP) == "" {
		return VerifyOutput{}, newError(ErrorInvalidInput, "missing_verification", "verifyToken and otp are required", nil)
	}

	v, err := s.tokens.Verify(in.VerifyToken, in.OTP)
	switch {
	case errors.Is(err, auth.ErrOTPMismatch):
		return VerifyOutput{}, newError(ErrorInvalidInput, "otp_mismatch", "Invalid OTP", nil)
	case err != nil:
		return VerifyOutput{}, newError(ErrorInvalidInput, "verification_invalid", "OTP EXPIRED or INVALID", nil)
	}

	user, err := s.users.GetUser(ctx, v.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return VerifyOutput{}, newError(ErrorInvalidInput, "verification_invalid", "OTP EXPIRED or INVALID", nil)
	}
	if err != nil {
		return VerifyOutput{}, newError(ErrorInternal, "user_lookup_error", "Failed to verify login", err)
	}

	token, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		return VerifyOutput{}, newError(ErrorInternal, "token_issue_error", "Failed to verify login", err)
	}
	return VerifyOutput{Token: token, User: user}, nil
}

// Authenticate resolves a session token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, newError(ErrorUnauthenticated, "missing_token", "You are not authorized to access this resource.", nil)
	}
	userID, err := s.tokens.ParseSession(token)
	if err != nil {
		return domain.User{}, newError(ErrorUnauthenticated, "invalid_token", "Invalid or expired token", nil)
	}
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, newError(ErrorUnauthenticated, "user_not_found", "User not found", nil)
	}
	if err != nil {
		return domain.User{}, newError(ErrorInternal, "user_lookup_error", "Server error", err)
	}
	return user, nil
}

var newOTP = func() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}
