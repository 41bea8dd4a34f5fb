// internal/workers/sql-agent/answer-request/handler_test.go
package answerrequest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	apperrors "sql-agent-workers/internal/common/errors"
	"sql-agent-workers/internal/common/logger"
	"sql-agent-workers/internal/models"
	"sql-agent-workers/internal/orchestrator"
)

type stubRunner struct {
	summary models.Summary
	err     error
	got     string
	calls   int
}

func (s *stubRunner) Run(ctx context.Context, request string) (models.Summary, error) {
	s.calls++
	s.got = request
	return s.summary, s.err
}

func newTestHandler(t *testing.T, runner Runner) *Handler {
	return NewHandler(&Config{Timeout: 5 * time.Second, MaxRequestLength: 100}, runner, logger.NewTestLogger(t))
}

func TestExecute_Success(t *testing.T) {
	runner := &stubRunner{summary: models.Summary{
		Result: models.QueryResult{
			Columns:  []string{"id", "name"},
			Data:     []models.Row{{"id": 1, "name": "Ada"}},
			RowCount: 1,
			SQLQuery: "SELECT id, name FROM sales.customers",
		},
		Discrepancies: []models.DiscrepancyRecord{},
		SchemaUsed:    "sales",
		TablesUsed:    []string{"customers"},
		Plan: models.Plan{
			Steps: []models.Stage{{Agent: models.AgentSchema}, {Agent: models.AgentQuery}},
		},
	}}
	h := newTestHandler(t, runner)

	out, err := h.Execute(context.Background(), &Input{Request: "  show customers  "})
	require.NoError(t, err)

	assert.Equal(t, "show customers", runner.got)
	assert.Equal(t, "sales", out.SchemaUsed)
	assert.Equal(t, []string{"customers"}, out.TablesUsed)
	assert.Equal(t, 1, out.Result.RowCount)
	assert.Len(t, out.Plan.Steps, 2)
	assert.NotNil(t, out.Discrepancies)
}

func TestExecute_QueryErrorIsNotAJobFailure(t *testing.T) {
	runner := &stubRunner{summary: models.Summary{
		Result:        models.QueryResult{Columns: []string{}, Data: []models.Row{}, Error: "SQL_GENERATION_FAILED"},
		Discrepancies: []models.DiscrepancyRecord{},
	}}
	h := newTestHandler(t, runner)

	out, err := h.Execute(context.Background(), &Input{Request: "show customers"})
	require.NoError(t, err)
	assert.Equal(t, "SQL_GENERATION_FAILED", out.Result.Error)
}

func TestExecute_EmptyRequest(t *testing.T) {
	runner := &stubRunner{}
	h := newTestHandler(t, runner)

	_, err := h.Execute(context.Background(), &Input{Request: "   "})
	require.Error(t, err)

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, stdErr.Code)
	assert.Zero(t, runner.calls)
}

func TestExecute_RequestTooLong(t *testing.T) {
	h := newTestHandler(t, &stubRunner{})

	_, err := h.Execute(context.Background(), &Input{Request: strings.Repeat("x", 101)})

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, stdErr.Code)
}

func TestExecute_PipelineAborted(t *testing.T) {
	runner := &stubRunner{err: orchestrator.ErrPipelineAborted}
	h := newTestHandler(t, runner)

	_, err := h.Execute(context.Background(), &Input{Request: "show customers"})

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodePipelineAborted, stdErr.Code)
	assert.False(t, stdErr.Retryable)
	assert.Contains(t, stdErr.Details, orchestrator.ErrPipelineAborted.Error())
}

// gatewayCall captures what the handler sent and the state of the context it
// was sent on.
type gatewayCall struct {
	method      string
	ctxErr      error
	hasDeadline bool
	errorCode   string
	variables   string
}

type recordingGateway struct {
	pb.GatewayClient
	calls []gatewayCall
}

func (g *recordingGateway) record(ctx context.Context, call gatewayCall) {
	_, call.hasDeadline = ctx.Deadline()
	call.ctxErr = ctx.Err()
	g.calls = append(g.calls, call)
}

func (g *recordingGateway) CompleteJob(ctx context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.record(ctx, gatewayCall{method: "CompleteJob", variables: in.GetVariables()})
	return &pb.CompleteJobResponse{}, nil
}

func (g *recordingGateway) FailJob(ctx context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.record(ctx, gatewayCall{method: "FailJob"})
	return &pb.FailJobResponse{}, nil
}

func (g *recordingGateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.record(ctx, gatewayCall{method: "ThrowError", errorCode: in.GetErrorCode()})
	return &pb.ThrowErrorResponse{}, nil
}

func noRetry(context.Context, error) bool { return false }

type recordingJobClient struct{ gw *recordingGateway }

func (c recordingJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gw, noRetry)
}

func (c recordingJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gw, noRetry)
}

func (c recordingJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gw, noRetry)
}

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, request string) (models.Summary, error) {
	<-ctx.Done()
	return models.Summary{}, ctx.Err()
}

func activatedJob(variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 7, Retries: 3, Variables: variables}}
}

func TestHandle_TimedOutJobIsStillReported(t *testing.T) {
	h := NewHandler(&Config{Timeout: 20 * time.Millisecond, MaxRequestLength: 100}, blockingRunner{}, logger.NewTestLogger(t))
	gw := &recordingGateway{}

	h.Handle(recordingJobClient{gw: gw}, activatedJob(`{"request":"list orders"}`))

	require.Len(t, gw.calls, 1)
	call := gw.calls[0]
	assert.Equal(t, "ThrowError", call.method)
	assert.Equal(t, string(apperrors.ErrCodePipelineAborted), call.errorCode)
	assert.NoError(t, call.ctxErr)
	assert.True(t, call.hasDeadline)
}

func TestHandle_CompletesWithOutput(t *testing.T) {
	runner := &stubRunner{summary: models.Summary{SchemaUsed: "sales", Discrepancies: []models.DiscrepancyRecord{}}}
	h := newTestHandler(t, runner)
	gw := &recordingGateway{}

	h.Handle(recordingJobClient{gw: gw}, activatedJob(`{"request":"list orders"}`))

	require.Len(t, gw.calls, 1)
	assert.Equal(t, "CompleteJob", gw.calls[0].method)
	assert.NoError(t, gw.calls[0].ctxErr)
	assert.Contains(t, gw.calls[0].variables, `"sales"`)
}

func TestHandle_BadInputIsThrown(t *testing.T) {
	h := newTestHandler(t, &stubRunner{})
	gw := &recordingGateway{}

	h.Handle(recordingJobClient{gw: gw}, activatedJob(`not json`))

	require.Len(t, gw.calls, 1)
	assert.Equal(t, "ThrowError", gw.calls[0].method)
	assert.Equal(t, string(apperrors.ErrCodeInvalidRequest), gw.calls[0].errorCode)
}
