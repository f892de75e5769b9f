package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"assistify/internal/domain"
	"assistify/internal/usecase"
)

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Message     string `json:"message"`
	VerifyToken string `json:"verifyToken"`
}

type verifyRequest struct {
	VerifyToken string   `json:"verifyToken"`
	OTP         otpValue `json:"otp"`
}

type verifyResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
}

type userResponse struct {
	User domain.User `json:"user"`
}

// otpValue accepts the passcode as a JSON string or number.
type otpValue string

func (o *otpValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*o = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = otpValue(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*o = otpValue(n.String())
	return nil
}

// POST /user/login
func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput("invalid request body")
	}
	verifyToken, err := s.auth.Login(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{Message: "Verification email sent", VerifyToken: verifyToken})
}

// POST /user/verify
func (s *Server) verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput("invalid request body")
	}
	out, err := s.auth.Verify(c.Request().Context(), usecase.VerifyInput{
		VerifyToken: req.VerifyToken,
		OTP:         string(req.OTP),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, verifyResponse{Message: "Logged In Successfully", Token: out.Token, User: out.User})
}

// GET /user/me
func (s *Server) me(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}
