// Package mailer delivers login passcodes.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

const otpSubject = "OTP Req"

// sesAPI is the subset of *sesv2.Client used by SES.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES sends passcodes through Amazon SES.
type SES struct {
	api  sesAPI
	from string
}

func NewSES(api sesAPI, from string) (*SES, error) {
	if api == nil {
		return nil, errors.New("mailer: api must not be nil")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("mailer: sender address must not be empty")
	}
	return &SES{api: api, from: from}, nil
}

func (m *SES) SendOTP(ctx context.Context, email, otp string) error {
	_, err := m.api.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(otpSubject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(otpBody(otp)), Charset: aws.String("UTF-8")},
					Html: &types.Content{Data: aws.String(otpHTML(otp)), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("mailer: send otp: %w", err)
	}
	return nil
}

func otpBody(otp string) string {
	return fmt.Sprintf("Your one-time passcode is %s. It expires in 10 minutes.", otp)
}

func otpHTML(otp string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif">`+
		`<h1 style="color:#4a90e2">OTP Verification</h1>`+
		`<p>Your one-time passcode is</p><p style="font-size:32px;font-weight:bold;letter-spacing:4px">%s</p>`+
		`<p>It expires in 10 minutes.</p></body></html>`, otp)
}

// Log prints passcode mails to a console outbox instead of sending them.
// The log line records the recipient only. Local runs only.
type Log struct {
	logger *slog.Logger
	outbox io.Writer
}

func NewLog(logger *slog.Logger, outbox io.Writer) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	if outbox == nil {
		outbox = os.Stderr
	}
	return &Log{logger: logger, outbox: outbox}
}

func (m *Log) SendOTP(ctx context.Context, email, otp string) error {
	if _, err := fmt.Fprintf(m.outbox, "To: %s\nSubject: %s\n\n%s\n\n", email, otpSubject, otpBody(otp)); err != nil {
		return fmt.Errorf("mailer: write outbox: %w", err)
	}
	m.logger.InfoContext(ctx, "passcode issued", "email", email, "driver", "log")
	return nil
}
