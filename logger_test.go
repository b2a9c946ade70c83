package vecdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("Bootstrap", func(t *testing.T) {
		buf := new(bytes.Buffer)
		l := NewJSONLoggerTo(buf, slog.LevelInfo)

		l.LogBootstrap(t.Context(), 3, errors.New("boom"))

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "bootstrap failed", rec["msg"])
		assert.Equal(t, "ERROR", rec["level"])
		assert.EqualValues(t, 3, rec["libraries"])
		assert.Equal(t, "boom", rec["error"])
	})

	t.Run("Close", func(t *testing.T) {
		buf := new(bytes.Buffer)
		db, err := New(WithLogger(NewTextLoggerTo(buf, slog.LevelDebug)))
		require.NoError(t, err)

		require.NoError(t, db.Close())
		require.NoError(t, db.Close())
		assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("database closed")))
	})

	t.Run("Noop", func(t *testing.T) {
		assert.False(t, NoopLogger().Enabled(t.Context(), slog.LevelError))
	})
}
