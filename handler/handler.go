// Package handler serves API Gateway proxy events through the echo router so
// the Lambda entry point answers exactly like the standalone server.
package handler

import (
	"context"
	"errors"
	"maps"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	echoadapter "github.com/awslabs/aws-lambda-go-api-proxy/echo"
	"github.com/labstack/echo/v4"
)

const requestIDHeader = "X-Request-Id"

type Handler struct {
	adapter *echoadapter.EchoLambda
}

func NewHandler(e *echo.Echo) (*Handler, error) {
	if e == nil {
		return nil, errors.New("handler: echo router must not be nil")
	}
	return &Handler{adapter: echoadapter.New(e)}, nil
}

// Handle serves one proxy event. Errors are returned only for events that
// cannot be turned into a request; application failures are HTTP responses.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.adapter.ProxyWithContext(ctx, withRequestID(event))
}

// withRequestID seeds X-Request-Id from the gateway request id unless the
// caller sent one. The event's header maps are copied, never mutated.
func withRequestID(event events.APIGatewayProxyRequest) events.APIGatewayProxyRequest {
	id := event.RequestContext.RequestID
	if id == "" || hasHeader(event, requestIDHeader) {
		return event
	}

	headers := make(map[string]string, len(event.Headers)+1)
	maps.Copy(headers, event.Headers)
	headers[requestIDHeader] = id
	event.Headers = headers

	if event.MultiValueHeaders != nil {
		multi := make(map[string][]string, len(event.MultiValueHeaders)+1)
		maps.Copy(multi, event.MultiValueHeaders)
		multi[requestIDHeader] = []string{id}
		event.MultiValueHeaders = multi
	}
	return event
}

func hasHeader(event events.APIGatewayProxyRequest, name string) bool {
	for k, v := range event.Headers {
		if strings.EqualFold(k, name) && v != "" {
			return true
		}
	}
	for k, vs := range event.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return true
		}
	}
	return false
}
