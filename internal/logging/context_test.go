package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextFields(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		assert.Empty(t, ContextFields(context.Background()))
	})

	t.Run("run stage route and request", func(t *testing.T) {
		ctx := WithRunID(context.Background(), "run-42")
		ctx = WithStage(ctx, "generate_reports")
		ctx = WithRoute(ctx, "login")
		ctx = WithRequestID(ctx, "req-1")

		keys := map[string]string{}
		for _, f := range ContextFields(ctx) {
			keys[f.Key] = f.String
		}
		assert.Equal(t, map[string]string{
			"run.id":     "run-42",
			"stage":      "generate_reports",
			"route":      "login",
			"request.id": "req-1",
		}, keys)
	})
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunIDFromContext(ctx))
	assert.Empty(t, StageFromContext(ctx))
	assert.Empty(t, RouteFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))

	assert.Equal(t, "r", RunIDFromContext(WithRunID(ctx, "r")))
}
