//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errONNXUnavailable = errors.New("ONNX encoder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXEncoder is a stub used when built without CGO (see onnx.go for the real implementation).
type ONNXEncoder struct{}

// NewONNXEncoder always fails without CGO.
func NewONNXEncoder(_, _ string, _, _ int) (*ONNXEncoder, error) {
	return nil, errONNXUnavailable
}

func (e *ONNXEncoder) Encode(context.Context, []string) ([][]float32, error) {
	return nil, errONNXUnavailable
}
func (e *ONNXEncoder) Dimensions() int   { return 0 }
func (e *ONNXEncoder) ModelName() string { return "" }
func (e *ONNXEncoder) Close() error      { return nil }
