package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{"catalog failure retries", NewCatalogAccessFailedError(errors.New("conn refused")), "CATALOG_ACCESS_FAILED", 3},
		{"lost connection retries five times", NewDatabaseConnectionFailedError(errors.New("bad connection")), "DATABASE_CONNECTION_FAILED", 5},
		{"invalid request does not retry", NewInvalidRequestError("empty request"), "INVALID_REQUEST", 0},
		{"aborted pipeline does not retry", NewPipelineAbortedError(errors.New("context canceled")), "PIPELINE_ABORTED", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			assert.Equal(t, string(tt.err.Code), bpmn.ErrorVariables["originalErrorCode"])
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeCatalogAccessFailed))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeDatabaseConnectionFailed))
	assert.Equal(t, "PIPELINE", GetErrorCategory(ErrCodePipelineAborted))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidRequest))
	assert.Equal(t, "UNKNOWN", GetErrorCategory("SOMETHING_ELSE"))
}

func TestErrorHandler_NormalizeWrapped(t *testing.T) {
	h := NewErrorHandler(nil)
	inner := NewCatalogAccessFailedError(errors.New("permission denied"))
	got := h.normalizeError(fmt.Errorf("refresh: %w", inner))
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeCatalogAccessFailed, got.Code)

	plain := h.normalizeError(errors.New("boom"))
	assert.Equal(t, ErrorCode("INTERNAL_ERROR"), plain.Code)
	assert.Equal(t, "boom", plain.Details)
}

func TestBPMNError_ToErrorVariables(t *testing.T) {
	b := &BPMNError{Code: "X", Message: "m", ErrorVariables: map[string]interface{}{"extra": 1}}
	vars := b.ToErrorVariables()
	assert.Equal(t, "X", vars["errorCode"])
	assert.Equal(t, 1, vars["extra"])
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		remaining int32
		want      jobOutcome
	}{
		{"retryable with budget", NewCatalogAccessFailedError(errors.New("refused")), 5, jobOutcome{fail: true, retries: 3}},
		{"zeebe has fewer left", NewCatalogAccessFailedError(errors.New("refused")), 2, jobOutcome{fail: true, retries: 1}},
		{"last attempt", NewDatabaseConnectionFailedError(errors.New("bad connection")), 1, jobOutcome{fail: true, retries: 0}},
		{"no retries left", NewCatalogAccessFailedError(errors.New("refused")), 0, jobOutcome{}},
		{"not retryable", NewInvalidRequestError("empty"), 3, jobOutcome{}},
		{"aborted", NewPipelineAbortedError(errors.New("cancelled")), 3, jobOutcome{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decide(tt.err, tt.remaining))
		})
	}
}

type unavailableGateway struct {
	pb.GatewayClient
	failed, thrown int
}

func (g *unavailableGateway) FailJob(ctx context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.failed++
	return nil, errors.New("gateway unavailable")
}

func (g *unavailableGateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.thrown++
	return nil, errors.New("gateway unavailable")
}

type gatewayJobClient struct{ gw pb.GatewayClient }

func neverRetry(context.Context, error) bool { return false }

func (c gatewayJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gw, neverRetry)
}

func (c gatewayJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gw, neverRetry)
}

func (c gatewayJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gw, neverRetry)
}

type capturedLog struct{ messages []string }

func (l *capturedLog) Error(msg string, fields map[string]interface{}) {
	l.messages = append(l.messages, msg)
}

func TestHandleJobError_LogsSendFailures(t *testing.T) {
	job := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 11, Retries: 3}}

	tests := []struct {
		name    string
		err     error
		wantMsg string
		failed  int
		thrown  int
	}{
		{"fail job", NewCatalogAccessFailedError(errors.New("refused")), "failed to send fail job command", 1, 0},
		{"throw error", NewInvalidRequestError("empty"), "failed to send throw error command", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &capturedLog{}
			gw := &unavailableGateway{}

			NewErrorHandler(log).HandleJobError(context.Background(), gatewayJobClient{gw: gw}, job, tt.err)

			assert.Equal(t, tt.failed, gw.failed)
			assert.Equal(t, tt.thrown, gw.thrown)
			assert.Equal(t, []string{"Job failed", tt.wantMsg}, log.messages)
		})
	}
}
