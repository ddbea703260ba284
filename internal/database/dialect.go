package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect captures the differences between the SQLite and PostgreSQL backends.
// Queries are written with ? placeholders and rebound per dialect.
type dialect struct {
	name      string
	driver    string
	schema    string
	numbered  bool
	forUpdate string
	// lockTable is run at the start of id-assigning transactions so two
	// processes cannot compute the same MAX(id)+1.
	lockTable string
	textTime  bool
}

var (
	sqliteDialect = dialect{
		name:     "sqlite",
		driver:   "sqlite",
		schema:   sqliteSchema,
		textTime: true,
	}
	postgresDialect = dialect{
		name:      "postgres",
		driver:    "postgres",
		schema:    postgresSchema,
		numbered:  true,
		forUpdate: " FOR UPDATE",
		lockTable: "LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE",
	}
)

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
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

// timeLayout has a fixed-width fraction so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func (d dialect) timeArg(t time.Time) any {
	if d.textTime {
		return t.UTC().Format(timeLayout)
	}
	return t.UTC()
}

// dbTime scans a timestamp stored either as TEXT (SQLite) or TIMESTAMPTZ.
type dbTime struct {
	Time time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// nullable maps a nil *string to SQL NULL.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}
