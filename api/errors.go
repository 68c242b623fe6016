package api

import (
	"errors"
	"net/http"

	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/domain"
)

// statusFor maps domain failures onto HTTP status codes.
func statusFor(err error) int {
	var (
		nf   *domain.NotFoundError
		ve   *domain.ValidationError
		ce   *domain.ConflictError
		lc   *domain.LastColumnError
		ne   *domain.NetworkError
		prer *board.PrerequisiteError
	)
	switch {
	case errors.As(err, &prer):
		return http.StatusFailedDependency
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ce), errors.As(err, &lc), errors.Is(err, board.ErrPendingMutations):
		return http.StatusConflict
	case errors.As(err, &ne):
		return http.StatusBadGateway
	case errors.Is(err, board.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}
