package telemetry

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTripsThroughSQSAttributes(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	ctx, parent := tp.Tracer("test").Start(context.Background(), "publish")
	attrs := InjectTraceContext(ctx)
	parent.End()
	require.Contains(t, attrs, "traceparent")

	msg := types.Message{
		MessageId:         aws.String("m-1"),
		Body:              aws.String(`{"employeeId":"emp-7"}`),
		MessageAttributes: attrs,
	}
	cctx, span := StartSpanFromSQSMessage(context.Background(), msg)
	defer span.End()

	assert.Equal(t, parent.SpanContext().TraceID(), trace.SpanContextFromContext(cctx).TraceID())
	assert.Equal(t, "emp-7", GetEmployeeIDFromContext(cctx))
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer("test-service", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
