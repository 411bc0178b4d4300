// Package mw provides middleware and registration helpers for the keylight2mqtt status API.
package mw

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// OperationOption is a function that modifies a Huma operation.
type OperationOption func(*huma.Operation)

// WithTags adds tags to the operation.
func WithTags(tags ...string) OperationOption {
	return func(op *huma.Operation) {
		op.Tags = append(op.Tags, tags...)
	}
}

// WithSummary sets the operation summary.
func WithSummary(summary string) OperationOption {
	return func(op *huma.Operation) {
		op.Summary = summary
	}
}

// WithDescription sets the operation description.
func WithDescription(desc string) OperationOption {
	return func(op *huma.Operation) {
		op.Description = desc
	}
}

// WithOperationID sets a custom operation ID.
func WithOperationID(id string) OperationOption {
	return func(op *huma.Operation) {
		op.OperationID = id
	}
}

// PublicGet registers a documented GET endpoint.
func PublicGet[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	op := huma.Operation{
		Method: http.MethodGet,
		Path:   path,
	}
	for _, opt := range opts {
		opt(&op)
	}
	huma.Register(api, op, handler)
}

// HiddenGet registers a GET endpoint that won't appear in OpenAPI docs.
// Used for probe aliases such as /healthz.
func HiddenGet[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error)) {
	huma.Register(api, huma.Operation{
		Method: http.MethodGet,
		Path:   path,
		Hidden: true,
	}, handler)
}
