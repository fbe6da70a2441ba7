package backends

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/volley/pkg/errors"
	"github.com/TFMV/volley/pkg/models"
	"github.com/TFMV/volley/pkg/pool"
)

// ExecuteSQL runs one query over a scoped connection from the pool and
// materializes the full result set. It is the shared execution path for all
// database/sql backed connectors: every error, including acquisition and
// scan failures, comes back as a Failure outcome.
func ExecuteSQL(ctx context.Context, p pool.ConnectionPool, id models.BackendID, query string, log zerolog.Logger) models.Outcome {
	start := time.Now()

	conn, err := p.Acquire(ctx)
	if err != nil {
		return failureFrom(err, id, query, "acquire connection")
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("error releasing connection")
		}
	}()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return failureFrom(err, id, query, "execute query")
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return failureFrom(err, id, query, "scan rows")
	}

	elapsed := time.Since(start)
	log.Debug().
		Int("rows", len(records)).
		Dur("elapsed", elapsed).
		Msg("query ok")

	return models.NewSuccess(&models.Success{
		Query:         query,
		Rows:          records,
		Backend:       id,
		Explanation:   fmt.Sprintf("Successfully executed query returning %d rows", len(records)),
		ExecutionTime: elapsed,
	})
}

// scanRows materializes *sql.Rows into ordered row records keyed by column
// name.
func scanRows(rows *sql.Rows) ([]models.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []models.Row
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(models.Row, len(columns))
		for i, col := range columns {
			v := values[i]
			// Drivers hand back []byte for text-ish columns; keep rows
			// JSON-friendly.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[col] = v
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// failureFrom converts an execution error into a Failure outcome, folding in
// context cancellation so a cancelled branch is recorded, not dropped.
func failureFrom(err error, id models.BackendID, query, op string) models.Outcome {
	code := errors.Classify(err)
	return models.NewFailure(&models.Failure{
		ErrorMessage: fmt.Sprintf("%s: %v", op, err),
		Backend:      id,
		Query:        query,
		Code:         code,
	})
}
