//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errONNXUnavailable = errors.New("onnx provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXProvider is unavailable without CGO (see onnx.go).
type ONNXProvider struct{}

// NewONNXProvider always fails when built without CGO.
func NewONNXProvider(_, _ string, _, _ int) (*ONNXProvider, error) {
	return nil, errONNXUnavailable
}

func (p *ONNXProvider) Embed(context.Context, string) (*Embedding, error) {
	return nil, errONNXUnavailable
}

func (p *ONNXProvider) Dimensions() int { return 0 }
func (p *ONNXProvider) Model() string   { return "" }
func (p *ONNXProvider) Close() error    { return nil }
