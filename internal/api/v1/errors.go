package v1

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/server/middleware"
)

// apiError maps a service error onto the HTTP taxonomy. Unexpected errors
// are logged and reported with the generic fallback message only.
func apiError(err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConflict):
		return huma.Error400BadRequest(domain.Message(err, "invalid request"))
	case errors.Is(err, domain.ErrUnauthorized):
		return huma.Error401Unauthorized(domain.Message(err, "authentication required"))
	case errors.Is(err, domain.ErrForbidden):
		return huma.Error403Forbidden(domain.Message(err, "forbidden"))
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound(domain.Message(err, "not found"))
	default:
		log.Error().Err(err).Msg(fallback)
		return huma.Error500InternalServerError(fallback)
	}
}

// actor returns the authenticated user or a 401.
func actor(ctx context.Context) (uuid.UUID, error) {
	id, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return uuid.Nil, huma.Error401Unauthorized("authentication required")
	}
	return id, nil
}

// viewer returns the authenticated user, or uuid.Nil for anonymous reads.
func viewer(ctx context.Context) uuid.UUID {
	id, _ := middleware.UserIDFromContext(ctx)
	return id
}
