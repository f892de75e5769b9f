package httpapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"assistify/internal/domain"
	"assistify/internal/usecase"
)

const (
	userContextKey = "user"
	legacyTokenHdr = "token"
)

// requireAuth resolves the caller from "Authorization: Bearer <jwt>" or the
// legacy "token: <jwt>" header and stores it on the context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := s.auth.Authenticate(c.Request().Context(), bearerToken(c))
		if err != nil {
			return err
		}
		c.Set(userContextKey, user)
		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header
	if v := strings.TrimSpace(h.Get(echo.HeaderAuthorization)); v != "" {
		scheme, token, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(h.Get(legacyTokenHdr))
}

func currentUser(c echo.Context) (domain.User, error) {
	user, ok := c.Get(userContextKey).(domain.User)
	if !ok {
		return domain.User{}, &usecase.Error{
			Code:    usecase.ErrorUnauthenticated,
			Reason:  "missing_token",
			Message: "You are not authorized to access this resource.",
		}
	}
	return user, nil
}
