package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	openRouterTokenParam = "openrouter-token"
	jwtSecretParam       = "jwt-secret"
)

// TokenSource reads {"token": "..."} documents by parameter name.
// *paramstore.Client satisfies this interface.
type TokenSource interface {
	GetToken(ctx context.Context, name string) (string, error)
}

// ResolveSecrets fills secrets that the environment left empty from
// <ParamPrefix>/openrouter-token and <ParamPrefix>/jwt-secret. Environment
// values win. A missing OpenRouter parameter is tolerated: chat generation then
// fails per request instead of the process refusing to start.
func (c *Config) ResolveSecrets(ctx context.Context, src TokenSource) error {
	if c.ParamPrefix == "" || src == nil {
		return nil
	}

	if c.LLM.APIKey == "" {
		key, err := src.GetToken(ctx, c.ParamPrefix+"/"+openRouterTokenParam)
		switch {
		case err == nil:
			c.LLM.APIKey = key
		case isParameterNotFound(err):
			slog.Warn("openrouter token parameter not found; generation disabled", "param", c.ParamPrefix+"/"+openRouterTokenParam)
		default:
			return fmt.Errorf("config: resolve openrouter token: %w", err)
		}
	}

	if c.Auth.JWTSecret == "" {
		secret, err := src.GetToken(ctx, c.ParamPrefix+"/"+jwtSecretParam)
		if err != nil {
			return fmt.Errorf("config: resolve jwt secret: %w", err)
		}
		c.Auth.JWTSecret = secret
	}
	return nil
}

func isParameterNotFound(err error) bool {
	var nf *ssmtypes.ParameterNotFound
	return errors.As(err, &nf)
}
