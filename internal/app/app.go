// Package app wires configuration, stores, integrations and services into the
// HTTP server shared by the standalone and Lambda entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awssesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"assistify/internal/auth"
	"assistify/internal/config"
	"assistify/internal/integrations/mailer"
	"assistify/internal/integrations/openrouter"
	"assistify/internal/integrations/paramstore"
	"assistify/internal/repository/dynamo"
	"assistify/internal/repository/sqlstore"
	"assistify/internal/transport/httpapi"
	"assistify/internal/usecase"
)

type store interface {
	usecase.ChatStore
	usecase.UserStore
}

type awsLoader func(ctx context.Context) (aws.Config, error)

// mailOutbox receives passcode mails from the log mail driver.
var mailOutbox io.Writer = os.Stderr

// App owns the server and the resources that must be released on exit.
type App struct {
	Server  *httpapi.Server
	closers []func() error
}

// New resolves secrets, validates cfg and builds the server. AWS
// configuration is loaded only when a component needs it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	return build(ctx, cfg, logger, lazyAWS())
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, loadAWS awsLoader) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ParamPrefix != "" {
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load aws config: %w", err)
		}
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("app: paramstore: %w", err)
		}
		if err := cfg.ResolveSecrets(ctx, params); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Info("configuration loaded",
		"store", cfg.Store.Driver,
		"mail", cfg.Mail.Driver,
		"llm", cfg.LLM,
		"auth", cfg.Auth,
	)

	a := &App{}
	st, err := a.openStore(ctx, cfg.Store, loadAWS)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	mail, err := newMailer(ctx, cfg.Mail, logger, loadAWS)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.OTPTTL, cfg.Auth.SessionTTL)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: token issuer: %w", err)
	}

	llm := openrouter.NewClient(openrouter.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		URL:         cfg.LLM.URL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	if cfg.LLM.APIKey == "" {
		logger.Warn("no OpenRouter credential configured; requests without an answer will fail")
	}

	chats, err := usecase.NewChatService(st, llm, cfg.LLM.Timeout)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: chat service: %w", err)
	}
	users, err := usecase.NewAuthService(st, issuer, mail)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: auth service: %w", err)
	}

	a.Server, err = httpapi.New(chats, users, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: http server: %w", err)
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.StoreConfig, loadAWS awsLoader) (store, error) {
	switch cfg.Driver {
	case config.StoreDynamoDB:
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load aws config: %w", err)
		}
		st, err := dynamo.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			return nil, fmt.Errorf("app: dynamo store: %w", err)
		}
		return st, nil
	case config.StoreSQL:
		db, err := sqlstore.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("app: sql store: %w", err)
		}
		a.closers = append(a.closers, func() error { return sqlstore.Close(db) })
		return sqlstore.New(db)
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.Driver)
	}
}

func newMailer(ctx context.Context, cfg config.MailConfig, logger *slog.Logger, loadAWS awsLoader) (usecase.Mailer, error) {
	switch cfg.Driver {
	case config.MailSES:
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load aws config: %w", err)
		}
		m, err := mailer.NewSES(awssesv2.NewFromConfig(awsCfg), cfg.From)
		if err != nil {
			return nil, fmt.Errorf("app: ses mailer: %w", err)
		}
		return m, nil
	case config.MailLog:
		return mailer.NewLog(logger, mailOutbox), nil
	default:
		return nil, fmt.Errorf("app: unknown mail driver %q", cfg.Driver)
	}
}

func lazyAWS() awsLoader {
	var (
		once   sync.Once
		awsCfg aws.Config
		err    error
	)
	return func(ctx context.Context) (aws.Config, error) {
		once.Do(func() {
			awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		})
		return awsCfg, err
	}
}
