package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/renewal-risk-api/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: fmt.Errorf("send: %w", context.DeadlineExceeded), want: "deadline_exceeded"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "app error", err: fmt.Errorf("load: %w", apperrors.NotFound("Property not found")), want: "app_not_found"},
		{
			name: "innermost concrete type",
			err:  fmt.Errorf("dial: %w", &net.OpError{Op: "dial", Err: goerrors.New("refused")}),
			want: "errors_errorstring",
		},
		{name: "plain", err: goerrors.New("boom"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
