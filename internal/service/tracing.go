package service

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("studentapi/internal/service")

// endSpan closes span, marking it failed only for errors the caller could
// not have caused.
func endSpan(span trace.Span, err error) {
	var verr *ValidationError
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidRoster) && !errors.As(err, &verr) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
