package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()
	ts := time.Date(2025, 3, 12, 8, 4, 5, 7_900_000, time.FixedZone("x", -3*3600))
	require.Equal(t, "2025-03-12T11:04:05.007Z", FormatRFC3339Millis(ts))
}

func TestLogger_DropsEmptyStrings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)
	log.Info("broker: request completed", "target", "", "rows", 3)
	log.Debug("hidden")

	out := buf.String()
	require.Contains(t, out, "broker: request completed")
	require.Contains(t, out, "rows=3")
	require.NotContains(t, out, "target=")
	require.NotContains(t, out, "hidden")
}

func TestLogger_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter(&buf, true).Debug("pool: handle cached")
	require.Contains(t, buf.String(), "pool: handle cached")
}
