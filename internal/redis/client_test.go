package redis

import (
	"context"
	"testing"
)

func TestNewInvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{URL: "not-a-url"}); err == nil {
		t.Fatal("New() with invalid URL succeeded")
	}
}
