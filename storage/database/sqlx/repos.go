package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/plp/edmodule/core"
)

const uniqueViolation = "23505"

// trapNoRowsErr maps psql "no rows" err to `notFound`.
// A closed connection pool cannot recover: it becomes a shutdown error.
func trapNoRowsErr(err, notFound error, msg string) error {
	cause := errors.Cause(err)
	switch {
	case cause == sql.ErrNoRows:
		return notFound
	case cause == sql.ErrConnDone || cause.Error() == "sql: database is closed":
		return errors.Wrap(core.NewShutdownError("database connection closed"), msg)
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// where accumulates "?"-placeholder conditions; queries are rebound for the driver before running.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func stringArray(values []string) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return values
}

func int64s(values []int) []int64 {
	out := make([]int64, 0, len(values))
	for _, v := range values {
		out = append(out, int64(v))
	}
	return out
}
