package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/ncruces/go-sqlite3"

	"github.com/Adarsh9315/task-palette-organize/domain"
)

// sqlError maps database/sql and SQLite failures onto the domain taxonomy.
func sqlError(op, kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return &domain.NotFoundError{Kind: kind, ID: id}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, sqlite3.BUSY), errors.Is(err, sqlite3.LOCKED), errors.Is(err, sqlite3.IOERR):
		return &domain.NetworkError{Op: op, Err: err}
	case errors.Is(err, sqlite3.CONSTRAINT):
		return &domain.ValidationError{Field: kind, Reason: err.Error()}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// tableError maps Azure Table responses onto the domain taxonomy.
func tableError(op, kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errMissing) {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return &domain.NotFoundError{Kind: kind, ID: id}
		case http.StatusBadRequest:
			return &domain.ValidationError{Field: kind, Reason: respErr.ErrorCode}
		case http.StatusConflict, http.StatusPreconditionFailed:
			return fmt.Errorf("%s: conflicting write: %w", op, err)
		}
		if respErr.StatusCode >= 500 || respErr.StatusCode == http.StatusRequestTimeout || respErr.StatusCode == http.StatusTooManyRequests {
			return &domain.NetworkError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	// Anything without a response never reached the service.
	return &domain.NetworkError{Op: op, Err: err}
}

func isNotFound(err error) bool {
	var nf *domain.NotFoundError
	return errors.As(err, &nf)
}
