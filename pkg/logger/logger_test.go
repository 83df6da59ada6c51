package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONWithServiceAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("entitlement-service", "info", &buf)

	log.Info("Device registered", map[string]interface{}{"purchase_id": "p-1", "device_count": 2})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "entitlement-service", entry["service"])
	assert.Equal(t, "Device registered", entry["message"])
	assert.Equal(t, "p-1", entry["purchase_id"])
	assert.EqualValues(t, 2, entry["device_count"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("svc", "warn", &buf)

	log.Debug("hidden", nil)
	log.Info("hidden", nil)
	assert.Zero(t, buf.Len())

	log.Warn("shown", nil)
	assert.Contains(t, buf.String(), `"shown"`)
}

func TestLogger_FatalExits(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("svc", "info", &buf).(*jsonLogger)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("boom", map[string]interface{}{"error": "x"})

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), `"level":"fatal"`)
}
