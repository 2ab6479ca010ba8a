package masking

import (
	"testing"

	"github.com/smallbiznis/lunara/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abcd"))
	assert.Equal(t, "****", MaskSecret("hunter22"))
	assert.Equal(t, "****6789", MaskSecret("sf-pass-123456789"))
}

func TestRedactFollowsCredentialPolicy(t *testing.T) {
	policy := config.DefaultCredentialPolicy()

	out := Redact(policy, map[string]any{
		" password ": "hunter22",
		"":           "dropped",
		"name":       "warehouse",
		"port":       5432,
		"config": map[string]any{
			"host":        "db.internal",
			"primary_key": "id",
			"auth": map[string]any{
				"client_id":     "abc",
				"client_secret": "very-long-client-secret",
			},
		},
		"tokens":  []any{map[string]any{"access_token": "short"}, "plain"},
		"api_key": 42,
	})

	assert.Equal(t, "****", out["password"])
	assert.NotContains(t, out, "")
	assert.Equal(t, "warehouse", out["name"])
	assert.Equal(t, 5432, out["port"])
	assert.Equal(t, "****", out["api_key"])

	cfg := out["config"].(map[string]any)
	assert.Equal(t, "db.internal", cfg["host"])
	assert.Equal(t, "id", cfg["primary_key"])
	assert.Equal(t, map[string]any{"client_id": "****", "client_secret": "****cret"}, cfg["auth"])

	assert.Equal(t, []any{map[string]any{"access_token": "****"}, "plain"}, out["tokens"])
}

func TestRedactEmpty(t *testing.T) {
	assert.Empty(t, Redact(config.DefaultCredentialPolicy(), nil))
}
