package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "01HX")
	ctx, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "01HX", cid)
	assert.Equal(t, "01HX", ExtractCorrelationID(ctx))
}

func TestAuditMetadataIncludesRemoteSpan(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")
	ctx, cid := EnsureCorrelationID(ctx)

	meta := AuditMetadata(ctx)
	assert.Equal(t, cid, meta["correlation_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", meta["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", meta["span_id"])
}
