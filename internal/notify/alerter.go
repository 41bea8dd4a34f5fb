// Package notify sends discrepancy alerts over SNS and SES.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sql-agent-workers/internal/models"
)

var ErrNotificationFailed = errors.New("NOTIFICATION_SEND_FAILED")

// Publisher is satisfied by the SNS client.
type Publisher interface {
	PublishAlert(ctx context.Context, topicARN, subject, message string) (string, error)
}

// Mailer is satisfied by the SES client.
type Mailer interface {
	SendAlert(ctx context.Context, from string, to []string, subject, body string) (string, error)
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Config struct {
	MinSeverity models.Severity
	TopicARN    string
	FromEmail   string
	To          []string
}

type Alerter struct {
	config    Config
	publisher Publisher
	mailer    Mailer
	logger    Logger
}

// NewAlerter builds an alerter. publisher and mailer may be nil to disable a
// channel.
func NewAlerter(config Config, publisher Publisher, mailer Mailer, log Logger) *Alerter {
	if !config.MinSeverity.Valid() {
		config.MinSeverity = models.SeverityHigh
	}
	return &Alerter{config: config, publisher: publisher, mailer: mailer, logger: log}
}

// Alert sends one message per channel covering every record at or above the
// minimum severity. Nothing is sent when no record qualifies.
func (a *Alerter) Alert(ctx context.Context, request string, records []models.DiscrepancyRecord) error {
	var selected []models.DiscrepancyRecord
	for _, r := range records {
		if r.Severity.AtLeast(a.config.MinSeverity) {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return nil
	}

	subject := fmt.Sprintf("SQL agent found %d %s+ discrepancies", len(selected), a.config.MinSeverity)
	body := formatBody(request, selected)

	var errs []error
	if a.publisher != nil && a.config.TopicARN != "" {
		id, err := a.publisher.PublishAlert(ctx, a.config.TopicARN, subject, body)
		if err != nil {
			errs = append(errs, fmt.Errorf("sns: %w", err))
		} else {
			a.logger.Info("discrepancy alert published", map[string]interface{}{"messageId": id, "count": len(selected)})
		}
	}
	if a.mailer != nil && a.config.FromEmail != "" && len(a.config.To) > 0 {
		id, err := a.mailer.SendAlert(ctx, a.config.FromEmail, a.config.To, subject, body)
		if err != nil {
			errs = append(errs, fmt.Errorf("ses: %w", err))
		} else {
			a.logger.Info("discrepancy alert emailed", map[string]interface{}{"messageId": id, "count": len(selected)})
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, errors.Join(errs...))
	}
	return nil
}

func formatBody(request string, records []models.DiscrepancyRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request: %s\n\n", request)
	for i, r := range records {
		fmt.Fprintf(&sb, "%d. [%s] %s: %s", i+1, r.Severity, r.Type, r.Message)
		if r.RuleName != "" {
			fmt.Fprintf(&sb, " (rule %s)", r.RuleName)
		}
		if len(r.RowIndices) > 0 {
			fmt.Fprintf(&sb, " rows %v", r.RowIndices)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
