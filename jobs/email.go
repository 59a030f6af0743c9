package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/marcuspat/devxplatform/internal/jobs"
	"github.com/marcuspat/devxplatform/internal/mailer"
)

// Enqueuer is the subset of asynq.Client used to dispatch follow-up tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

const defaultEmailBatchSize = 100

// EmailJob handles the email queue task types.
type EmailJob struct {
	Sender   mailer.Sender
	Enqueuer Enqueuer
	Metrics  *jobmetrics.Metrics
	Logger   *slog.Logger
}

// HandleSend delivers a single email.
func (j *EmailJob) HandleSend(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskEmailSend)
	var p SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}
	if p.To == "" || p.Subject == "" {
		return track.End(fmt.Errorf("missing recipient or subject: %w", asynq.SkipRetry))
	}

	if err := j.Sender.Send(ctx, mailer.Message{
		To:       p.To,
		Subject:  p.Subject,
		Body:     p.Body,
		HTMLBody: p.HTMLBody,
	}); err != nil {
		j.Logger.Error("email delivery failed", slog.String("to", p.To), slog.Any("error", err))
		return track.End(fmt.Errorf("send email to %s: %w", p.To, err))
	}
	j.Logger.Info("email sent", slog.String("to", p.To), slog.String("subject", p.Subject))
	return track.End(nil)
}

// HandleBulk fans one email:send task out per recipient, in batches so a
// single oversized payload cannot stall the queue.
func (j *EmailJob) HandleBulk(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskEmailBulk)
	var p BulkEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}
	if len(p.Recipients) == 0 {
		return track.End(fmt.Errorf("no recipients: %w", asynq.SkipRetry))
	}
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmailBatchSize
	}

	queued, failed := 0, 0
	for start := 0; start < len(p.Recipients); start += batchSize {
		end := min(start+batchSize, len(p.Recipients))
		for _, to := range p.Recipients[start:end] {
			task, err := NewSendEmailTask(SendEmailPayload{
				To:       to,
				Subject:  p.Subject,
				Body:     p.Body,
				HTMLBody: p.HTMLBody,
			})
			if err == nil {
				_, err = j.Enqueuer.EnqueueContext(ctx, task)
			}
			if err != nil {
				failed++
				j.Logger.Error("bulk email enqueue failed", slog.String("to", to), slog.Any("error", err))
				continue
			}
			queued++
		}
		j.Logger.Info("bulk email batch dispatched",
			slog.Int("batch_start", start),
			slog.Int("batch_end", end),
			slog.Int("total", len(p.Recipients)))
	}

	if queued == 0 {
		return track.End(fmt.Errorf("bulk email: all %d enqueues failed", failed))
	}
	j.Logger.Info("bulk email dispatched", slog.Int("queued", queued), slog.Int("failed", failed))
	return track.End(nil)
}

// HandleTemplate renders a named template and enqueues the delivery.
func (j *EmailJob) HandleTemplate(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskEmailTemplate)
	var p TemplateEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}

	tmpl, ok := emailTemplates[p.Template]
	if !ok {
		return track.End(fmt.Errorf("unknown email template %q: %w", p.Template, asynq.SkipRetry))
	}
	subject, err := renderTemplate(tmpl.subject, p.Context)
	if err != nil {
		return track.End(fmt.Errorf("render subject: %w: %w", err, asynq.SkipRetry))
	}
	body, err := renderTemplate(tmpl.body, p.Context)
	if err != nil {
		return track.End(fmt.Errorf("render body: %w: %w", err, asynq.SkipRetry))
	}

	task, err := NewSendEmailTask(SendEmailPayload{To: p.To, Subject: subject, Body: body})
	if err != nil {
		return track.End(err)
	}
	if _, err := j.Enqueuer.EnqueueContext(ctx, task); err != nil {
		return track.End(fmt.Errorf("enqueue rendered email: %w", err))
	}
	j.Logger.Info("template email queued", slog.String("to", p.To), slog.String("template", p.Template))
	return track.End(nil)
}

type emailTemplate struct {
	subject string
	body    string
}

var emailTemplates = map[string]emailTemplate{
	"welcome": {
		subject: "Welcome to {{.app_name}}",
		body:    "Hi {{.username}},\n\nYour account is ready. Log in any time at {{.login_url}}.\n",
	},
	"password_reset": {
		subject: "Reset your password",
		body:    "Hi {{.username}},\n\nUse the link below to reset your password. It expires in {{.expires_in}}.\n\n{{.reset_url}}\n",
	},
}

func renderTemplate(text string, data map[string]string) (string, error) {
	tmpl, err := template.New("email").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
