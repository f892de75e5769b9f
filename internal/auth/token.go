// Package auth issues and verifies the two JWTs of the email login flow: a
// short-lived verification token bound to a one-time passcode, and the
// long-lived session token sent on every authenticated request.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

const (
	claimPurpose  = "purpose"
	claimEmail    = "email"
	claimOTP      = "otp_digest"
	purposeVerify = "verify"
	purposeLogin  = "session"
	issuer        = "assistify"
)

var (
	// ErrInvalidToken covers malformed, expired, forged and wrong-purpose tokens.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	// ErrOTPMismatch is returned when the passcode does not match the verification token.
	ErrOTPMismatch = errors.New("auth: invalid otp")
)

// Verification is the content of a verification token.
type Verification struct {
	UserID string
	Email  string
}

// Issuer signs and verifies HS256 tokens with a shared secret.
type Issuer struct {
	secret     []byte
	verifyTTL  time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, verifyTTL, sessionTTL time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret must not be empty")
	}
	if verifyTTL <= 0 || sessionTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &Issuer{
		secret:     []byte(secret),
		verifyTTL:  verifyTTL,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}, nil
}

// IssueVerification returns a token carrying the user and a keyed digest of
// otp. The passcode itself never appears in the token.
func (i *Issuer) IssueVerification(userID, email, otp string) (string, error) {
	now := i.now()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(i.verifyTTL)).
		Claim(claimPurpose, purposeVerify).
		Claim(claimEmail, email).
		Claim(claimOTP, i.digest(otp)).
		Build()
	if err != nil {
		return "", fmt.Errorf("auth: build verification token: %w", err)
	}
	return i.sign(tok)
}

// Verify checks otp against a verification token.
func (i *Issuer) Verify(verifyToken, otp string) (Verification, error) {
	tok, err := i.parse(verifyToken, purposeVerify)
	if err != nil {
		return Verification{}, err
	}
	var digest, email string
	if err := tok.Get(claimOTP, &digest); err != nil {
		return Verification{}, ErrInvalidToken
	}
	if err := tok.Get(claimEmail, &email); err != nil {
		return Verification{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(digest), []byte(i.digest(strings.TrimSpace(otp)))) {
		return Verification{}, ErrOTPMismatch
	}
	sub, _ := tok.Subject()
	return Verification{UserID: sub, Email: email}, nil
}

// IssueSession returns a session token for userID.
func (i *Issuer) IssueSession(userID string) (string, error) {
	now := i.now()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(i.sessionTTL)).
		Claim(claimPurpose, purposeLogin).
		Build()
	if err != nil {
		return "", fmt.Errorf("auth: build session token: %w", err)
	}
	return i.sign(tok)
}

// ParseSession returns the user id of a valid session token.
func (i *Issuer) ParseSession(token string) (string, error) {
	tok, err := i.parse(token, purposeLogin)
	if err != nil {
		return "", err
	}
	sub, _ := tok.Subject()
	return sub, nil
}

func (i *Issuer) sign(tok jwt.Token) (string, error) {
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), i.secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return string(signed), nil
}

func (i *Issuer) parse(token, purpose string) (jwt.Token, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	tok, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256(), i.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
		jwt.WithClock(jwt.ClockFunc(i.now)),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var got string
	if err := tok.Get(claimPurpose, &got); err != nil || got != purpose {
		return nil, ErrInvalidToken
	}
	if sub, ok := tok.Subject(); !ok || sub == "" {
		return nil, ErrInvalidToken
	}
	return tok, nil
}

func (i *Issuer) digest(otp string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(otp))
	return hex.EncodeToString(mac.Sum(nil))
}
