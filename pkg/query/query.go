package query

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/identra/identra/pkg/logging"
)

// Queries is the read side: plain SQL over the projection tables. It never
// touches the event store; reads are eventually consistent with it.
type Queries struct {
	db     *sql.DB
	logger logging.Logger
}

func New(db *sql.DB, logger logging.Logger) *Queries {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Queries{db: db, logger: logger}
}

// SearchRequest is the common pagination envelope.
type SearchRequest struct {
	Offset uint64
	Limit  uint64

	// SortColumn must be one of the entity's sortable columns; unknown
	// columns are ignored.
	SortColumn string
	Asc        bool
}

func (r *SearchRequest) limitClause(sortable []string) string {
	var b strings.Builder
	if r.SortColumn != "" && contains(sortable, r.SortColumn) {
		direction := "DESC"
		if r.Asc {
			direction = "ASC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", r.SortColumn, direction)
	}
	if r.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", r.Limit)
	}
	if r.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", r.Offset)
	}
	return b.String()
}

// SearchResponse carries the page plus the unpaginated total.
type SearchResponse struct {
	TotalCount uint64
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func microTime(micros int64) time.Time {
	return time.UnixMicro(micros)
}
