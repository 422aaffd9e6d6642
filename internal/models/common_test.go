package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONScanWebhookPayload(t *testing.T) {
	payload := `{"merchantReference":"abc-123","status":"CONFIRMED"}`

	t.Run("from bytes", func(t *testing.T) {
		var j JSON
		require.NoError(t, j.Scan([]byte(payload)))
		assert.Equal(t, "abc-123", j["merchantReference"])
	})

	t.Run("from string", func(t *testing.T) {
		var j JSON
		require.NoError(t, j.Scan(payload))
		assert.Equal(t, "CONFIRMED", j["status"])
	})

	t.Run("nil column", func(t *testing.T) {
		j := JSON{"stale": true}
		require.NoError(t, j.Scan(nil))
		assert.Nil(t, j)
	})

	t.Run("unsupported type", func(t *testing.T) {
		var j JSON
		assert.Error(t, j.Scan(42))
	})
}

func TestJSONValue(t *testing.T) {
	var nilJSON JSON
	v, err := nilJSON.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = JSON{"status": "CONFIRMED"}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"CONFIRMED"}`, string(v.([]byte)))
}
