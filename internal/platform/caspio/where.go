package caspio

import (
	"strings"
	"time"
)

// Where builds the simple `Field='value' AND ...` filter the tables API accepts.
type Where struct {
	clauses []string
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func (w Where) Eq(field, value string) Where {
	w.clauses = append(append([]string(nil), w.clauses...), field+"="+quote(value))
	return w
}

// After filters on a timestamp column.
func (w Where) After(field string, t time.Time) Where {
	w.clauses = append(append([]string(nil), w.clauses...), field+">"+quote(t.UTC().Format("2006-01-02T15:04:05")))
	return w
}

func (w Where) IsZero() bool { return len(w.clauses) == 0 }

func (w Where) String() string {
	return strings.Join(w.clauses, " AND ")
}
