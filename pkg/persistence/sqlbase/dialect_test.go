package sqlbase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect_Rebind(t *testing.T) {
	t.Parallel()

	query := "UPDATE tasks SET status = ? WHERE workspace_id = ? AND id = ?"

	assert.Equal(t, "UPDATE tasks SET status = $1 WHERE workspace_id = $2 AND id = $3", Postgres.Rebind(query))
	assert.Equal(t, query, SQLite.Rebind(query))
}

func TestDialect_TextTimeSortsLexically(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	earlier := SQLite.Time(base).(string)
	later := SQLite.Time(base.Add(500 * time.Millisecond)).(string)

	assert.Less(t, earlier, later)
	assert.Len(t, later, len(earlier))
	native, ok := Postgres.Time(base.In(time.FixedZone("UTC+3", 3*3600))).(time.Time)
	require.True(t, ok)
	assert.True(t, base.Equal(native))
	assert.Equal(t, time.UTC, native.Location())
	assert.Nil(t, SQLite.NullTime(nil))
}

func TestTimestamp_Scan(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 1, 10, 9, 0, 0, 123456789, time.UTC)

	tests := []struct {
		name  string
		src   any
		valid bool
	}{
		{"nil", nil, false},
		{"native", want, true},
		{"fixed width text", SQLite.Time(want), true},
		{"bytes", []byte(want.Format(time.RFC3339Nano)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var ts Timestamp
			require.NoError(t, ts.Scan(tt.src))
			assert.Equal(t, tt.valid, ts.Valid)

			if tt.valid {
				assert.True(t, want.Equal(ts.Time))
				require.NotNil(t, ts.Ptr())
			} else {
				assert.Nil(t, ts.Ptr())
			}
		})
	}

	var ts Timestamp
	assert.Error(t, ts.Scan(42))
	assert.Error(t, ts.Scan("yesterday"))
}
