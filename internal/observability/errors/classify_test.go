package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/target/mmk-inference/internal/errors"
)

type customErr struct{}

func (*customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"app error", apperrors.QueueFull(4), "queue_full"},
		{"wrapped app error", fmt.Errorf("enqueue: %w", apperrors.NotFound("job")), "not_found"},
		{"deadline", fmt.Errorf("execute: %w", context.DeadlineExceeded), "deadline_exceeded"},
		{"canceled", context.Canceled, "canceled"},
		{"custom pointer", fmt.Errorf("wrap: %w", &customErr{}), "errors_customerr"},
		{"plain", errors.New("boom"), "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
