package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	errx "github.com/enterprise-data-agent/server/internal/core/error"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
	"github.com/enterprise-data-agent/server/pkg/metrics"
)

// NotConfiguredMessage is reported when no database connection was provided.
const NotConfiguredMessage = "Database is not configured. Set DATABASE_URL to enable query execution."

// Executor runs guarded read-only queries against the configured database.
type Executor struct {
	db      *gorm.DB
	limiter *rate.Limiter
	maxRows int
	timeout time.Duration
	metrics *metrics.Collector
}

func NewExecutor(db *gorm.DB, cfg model.SQLConfig, m *metrics.Collector) *Executor {
	e := &Executor{db: db, maxRows: cfg.MaxRows, timeout: cfg.QueryTimeout, metrics: m}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return e
}

// Execute validates and runs query. Failures are reported in the result, never
// as a Go error, so the calling agent can read and react to them.
func (e *Executor) Execute(ctx context.Context, query string) model.SQLResult {
	start := time.Now()
	if err := ValidateReadOnly(query); err != nil {
		logx.Warn().Err(err).Str("query", query).Msg("Rejected SQL query")
		e.metrics.RecordSQL("rejected", 0)
		return failed(err.Error())
	}
	if e.db == nil {
		e.metrics.RecordSQL("error", 0)
		return failed(NotConfiguredMessage)
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			e.metrics.RecordSQL("error", time.Since(start))
			return failed(fmt.Sprintf("query rate limit: %v", err))
		}
	}

	res, err := e.run(ctx, query)
	if err != nil {
		wrapped := errx.WrapSQL(err)
		logx.Error().Err(wrapped).Str("query", query).Msg("SQL execution failed")
		e.metrics.RecordSQL("error", time.Since(start))
		return failed(err.Error())
	}
	e.metrics.RecordSQL("ok", time.Since(start))
	logx.Debug().Int("row_count", res.RowCount).Bool("truncated", res.Truncated).Dur("elapsed", time.Since(start)).Msg("SQL executed")
	return res
}

func (e *Executor) run(ctx context.Context, query string) (model.SQLResult, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return model.SQLResult{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return model.SQLResult{}, err
	}

	res := model.SQLResult{Success: true, Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if e.maxRows > 0 && len(res.Rows) >= e.maxRows {
			res.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return model.SQLResult{}, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = JSONSafe(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return model.SQLResult{}, err
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

// Ping checks the database connection.
func (e *Executor) Ping(ctx context.Context) error {
	if e.db == nil {
		return errx.New(errx.ErrNotConfigured, http.StatusServiceUnavailable, NotConfiguredMessage)
	}
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func failed(msg string) model.SQLResult {
	return model.SQLResult{Success: false, Columns: []string{}, Rows: []map[string]any{}, Error: msg}
}

// JSONSafe converts a scanned driver value into a JSON-friendly scalar.
func JSONSafe(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	default:
		return fmt.Sprint(t)
	}
}
