package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWith_AddsAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	FromContext(With(ctx, "node", "styles#0")).Info("Starting task.")

	assert.Contains(t, buf.String(), "node=styles#0")
}

func TestFromContext_DefaultsWhenMissing(t *testing.T) {
	t.Parallel()
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}
