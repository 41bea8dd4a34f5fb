package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-agent-workers/internal/common/logger"
	"sql-agent-workers/internal/models"
)

type fakePublisher struct {
	calls   int
	subject string
	message string
	err     error
}

func (f *fakePublisher) PublishAlert(ctx context.Context, topicARN, subject, message string) (string, error) {
	f.calls++
	f.subject, f.message = subject, message
	return "msg-1", f.err
}

type fakeMailer struct {
	calls int
	to    []string
}

func (f *fakeMailer) SendAlert(ctx context.Context, from string, to []string, subject, body string) (string, error) {
	f.calls++
	f.to = to
	return "mail-1", nil
}

var records = []models.DiscrepancyRecord{
	{Type: models.TypeNullValue, Severity: models.SeverityLow, Message: "null"},
	{Type: models.TypeDuplicateValue, Severity: models.SeverityHigh, Message: "dup", RowIndices: []int{0, 2}},
	{Type: "invalid_total", Severity: models.SeverityMedium, Message: "negative", RuleName: "negative_order_totals"},
}

func TestAlerter_FiltersBySeverity(t *testing.T) {
	pub, mail := &fakePublisher{}, &fakeMailer{}
	alerter := NewAlerter(Config{TopicARN: "arn", FromEmail: "a@example.com", To: []string{"ops@example.com"}}, pub, mail, logger.NewTestLogger(t))

	require.NoError(t, alerter.Alert(context.Background(), "check orders", records))
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, 1, mail.calls)
	assert.Contains(t, pub.subject, "1 high+")
	assert.Contains(t, pub.message, "Request: check orders")
	assert.Contains(t, pub.message, "[high] duplicate_value: dup rows [0 2]")
	assert.NotContains(t, pub.message, "negative")
}

func TestAlerter_MediumThreshold(t *testing.T) {
	pub := &fakePublisher{}
	alerter := NewAlerter(Config{MinSeverity: models.SeverityMedium, TopicARN: "arn"}, pub, nil, logger.NewTestLogger(t))

	require.NoError(t, alerter.Alert(context.Background(), "q", records))
	assert.Contains(t, pub.message, "(rule negative_order_totals)")
	assert.NotContains(t, pub.message, "null")
}

func TestAlerter_NothingToSend(t *testing.T) {
	pub := &fakePublisher{}
	alerter := NewAlerter(Config{TopicARN: "arn"}, pub, nil, logger.NewTestLogger(t))

	require.NoError(t, alerter.Alert(context.Background(), "q", records[:1]))
	assert.Equal(t, 0, pub.calls)
}

func TestAlerter_PublishFailure(t *testing.T) {
	pub, mail := &fakePublisher{err: errors.New("throttled")}, &fakeMailer{}
	alerter := NewAlerter(Config{TopicARN: "arn", FromEmail: "a@example.com", To: []string{"ops@example.com"}}, pub, mail, logger.NewTestLogger(t))

	err := alerter.Alert(context.Background(), "q", records)
	assert.ErrorIs(t, err, ErrNotificationFailed)
	assert.Equal(t, 1, mail.calls, "email still goes out when SNS fails")
}
