package xslog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	go_json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

func TestContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), base)
	ctx = WithOwner(ctx, "u1")
	ctx = WithChannel(ctx, "public:notifications:owner_id=eq.u1")
	FromContext(ctx).InfoContext(ctx, "subscribed")

	var got map[string]any
	if err := go_json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	want := map[string]any{
		"msg":      "subscribed",
		"owner_id": "u1",
		"channel":  "public:notifications:owner_id=eq.u1",
	}
	for k, v := range want {
		if diff := cmp.Diff(v, got[k]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", k, diff)
		}
	}
}

func TestFromContextDefault(t *testing.T) {
	t.Parallel()

	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("FromContext() without logger did not return slog.Default()")
	}
	ctx := context.Background()
	if got := With(ctx); got != ctx {
		t.Error("With() without args returned a new context")
	}
}
