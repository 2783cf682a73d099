package errx

import (
	"context"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// backend maps a failed call to an external service. Deadline errors become
// 504, everything else 502.
func backend(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return New(err, http.StatusGatewayTimeout, message)
	}
	return New(err, http.StatusBadGateway, message)
}

// WrapRedis maps Redis errors to AppError. redis.Nil becomes a 404.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return backend(err, RedisErrorMessage)
}

// WrapSQL maps database driver errors to AppError.
func WrapSQL(err error) error {
	if err == nil {
		return nil
	}
	return backend(err, DatabaseErrorMessage)
}

// WrapSearch maps vector index and embedding errors to AppError.
func WrapSearch(err error) error {
	if err == nil {
		return nil
	}
	return backend(err, SearchErrorMessage)
}
