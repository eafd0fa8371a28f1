package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/go-verification-nosql/internal/domain"
	"github.com/go-verification-nosql/internal/infrastructure/sns"
	"github.com/go-verification-nosql/internal/pkg/logging"
)

const Subject = "Confirm your email address"

// DefaultTemplate is used when no template blob is configured or found.
const DefaultTemplate = `Hello,

Your verification code is {{.Code}}.

You can also confirm your address by opening this link:
{{.ConfirmationURL}}

If you did not request this, you can ignore this email.
`

// Service delivers verification emails.
type Service interface {
	SendVerificationEmail(ctx context.Context, email, code, confirmationURL string) error
}

type templateSource interface {
	ReadText(ctx context.Context, key string) (string, error)
}

type mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type publisher interface {
	Publish(ctx context.Context, ev sns.VerificationEmailEvent) error
}

type service struct {
	templates   templateSource
	templateKey string
	mailer      mailer
	publisher   publisher
	fallback    *template.Template
}

// ServiceDeps wires the service. When Publisher is set, emails are published
// to SNS for an external worker; otherwise Mailer sends them over SMTP.
// Templates may be nil, in which case DefaultTemplate is always used.
type ServiceDeps struct {
	Templates   templateSource
	TemplateKey string
	Mailer      mailer
	Publisher   publisher
}

func NewService(deps ServiceDeps) Service {
	return &service{
		templates:   deps.Templates,
		templateKey: deps.TemplateKey,
		mailer:      deps.Mailer,
		publisher:   deps.Publisher,
		fallback:    template.Must(template.New("default").Parse(DefaultTemplate)),
	}
}

type emailData struct {
	Email           string
	Code            string
	ConfirmationURL string
}

func (s *service) SendVerificationEmail(ctx context.Context, email, code, confirmationURL string) error {
	body, err := s.render(ctx, emailData{Email: email, Code: code, ConfirmationURL: confirmationURL})
	if err != nil {
		return err
	}

	if s.publisher != nil {
		return s.publisher.Publish(ctx, sns.VerificationEmailEvent{
			Email:           email,
			Subject:         Subject,
			Body:            body,
			ConfirmationURL: confirmationURL,
		})
	}
	if s.mailer == nil {
		return errors.New("notification: no delivery channel configured")
	}
	if err := s.mailer.SendEmail(ctx, email, Subject, body); err != nil {
		return err
	}
	slog.Info("verification email sent", "email", logging.RedactEmail(email))
	return nil
}

func (s *service) render(ctx context.Context, data emailData) (string, error) {
	tmpl := s.loadTemplate(ctx)
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render verification email: %w", err)
	}
	return sb.String(), nil
}

// loadTemplate prefers the stored template and falls back to DefaultTemplate
// when the blob is absent, unreadable or does not parse.
func (s *service) loadTemplate(ctx context.Context) *template.Template {
	if s.templates == nil || s.templateKey == "" {
		return s.fallback
	}
	text, err := s.templates.ReadText(ctx, s.templateKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("load email template", "key", s.templateKey, "error", err)
		}
		return s.fallback
	}
	tmpl, err := template.New(s.templateKey).Option("missingkey=error").Parse(text)
	if err != nil {
		slog.Warn("parse email template", "key", s.templateKey, "error", err)
		return s.fallback
	}
	return tmpl
}
