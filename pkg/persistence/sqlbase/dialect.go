package sqlbase

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the few differences between the supported SQL engines.
// Queries are written with '?' placeholders and rebound per dialect.
type Dialect struct {
	Name string

	// positional selects $1, $2, ... placeholders.
	positional bool

	// textTime stores timestamps as fixed-width UTC text so they compare lexically.
	textTime bool
}

var (
	Postgres = Dialect{Name: "postgres", positional: true}
	SQLite   = Dialect{Name: "sqlite", textTime: true}
)

// timeLayout is fixed width so text timestamps sort and compare correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Rebind rewrites '?' placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.positional {
		return query
	}

	var (
		b strings.Builder
		n int
	)

	b.Grow(len(query) + 16)

	for _, r := range query {
		if r == '?' {
			n++

			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// Time converts t to the dialect's stored representation.
func (d Dialect) Time(t time.Time) any {
	if d.textTime {
		return t.UTC().Format(timeLayout)
	}

	return t.UTC()
}

// NullTime converts an optional timestamp.
func (d Dialect) NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return d.Time(*t)
}

// Timestamp scans either native timestamps or the text form written by Time.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (ts *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		ts.Time, ts.Valid = time.Time{}, false

		return nil
	case time.Time:
		ts.Time, ts.Valid = v.UTC(), true

		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (ts *Timestamp) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time, ts.Valid = t.UTC(), true

			return nil
		}
	}

	return fmt.Errorf("cannot parse timestamp %q", s)
}

// Ptr returns nil for NULL timestamps.
func (ts Timestamp) Ptr() *time.Time {
	if !ts.Valid {
		return nil
	}

	t := ts.Time

	return &t
}

var _ driver.Valuer = jsonText(nil)

// jsonText stores JSON documents as text so both JSONB and TEXT columns accept them.
type jsonText []byte

// Value implements driver.Valuer.
func (j jsonText) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}

	return string(j), nil
}
