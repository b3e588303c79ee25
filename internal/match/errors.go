package match

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/meeting"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/store"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrMatchNotFound  = errors.New("match not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrMatchFull      = errors.New("match is full")
	ErrMatchNotInPlay = errors.New("match is not in play")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StatusCode maps a command error to the HTTP status reported to the caller
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrMatchNotFound),
		errors.Is(err, ErrPlayerNotFound),
		errors.Is(err, meeting.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMatchFull), errors.Is(err, ErrMatchNotInPlay):
		return http.StatusConflict
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
