package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"assistify/internal/usecase"
)

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

var statusByCode = map[usecase.ErrorCode]int{
	usecase.ErrorInvalidInput:    http.StatusBadRequest,
	usecase.ErrorUnauthenticated: http.StatusUnauthorized,
	usecase.ErrorForbidden:       http.StatusForbidden,
	usecase.ErrorNotFound:        http.StatusNotFound,
	usecase.ErrorUpstream:        http.StatusBadGateway,
	usecase.ErrorUpstreamAuth:    http.StatusBadGateway,
	usecase.ErrorPersistence:     http.StatusInternalServerError,
	usecase.ErrorInternal:        http.StatusInternalServerError,
}

// handleError is echo's HTTPErrorHandler. Every failure leaves the API as
// {"error", "message", "detail", "requestId"}; detail is set for 5xx only.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := s.describe(err)
	body.RequestID = c.Response().Header().Get(echo.HeaderXRequestID)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error",
			"code", body.Error,
			"reason", body.Detail,
			"request_id", body.RequestID,
			"err", err,
		)
	} else {
		body.Detail = ""
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Warn("write error response", "err", err)
	}
}

func (s *Server) describe(err error) (int, errorResponse) {
	var ue *usecase.Error
	if errors.As(err, &ue) {
		status, ok := statusByCode[ue.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return status, errorResponse{Error: string(ue.Code), Message: ue.Message, Detail: ue.Reason}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
		return he.Code, errorResponse{Error: codeForStatus(he.Code), Message: msg, Detail: "http_error"}
	}

	return http.StatusInternalServerError, errorResponse{
		Error:   string(usecase.ErrorInternal),
		Message: "Server error occurred",
		Detail:  "unexpected_error",
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return string(usecase.ErrorInvalidInput)
	case http.StatusUnauthorized:
		return string(usecase.ErrorUnauthenticated)
	case http.StatusForbidden:
		return string(usecase.ErrorForbidden)
	case http.StatusNotFound:
		return string(usecase.ErrorNotFound)
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		return string(usecase.ErrorInternal)
	}
}

func invalidInput(message string) *usecase.Error {
	return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_request", Message: message}
}
