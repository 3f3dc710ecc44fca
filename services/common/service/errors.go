package service

import (
	"errors"

	"github.com/dancelink/platform/internal/app/domain"
	"github.com/dancelink/platform/internal/app/storage"
	svcerrors "github.com/dancelink/platform/internal/errors"
)

// StoreError maps a store failure to a *ServiceError. Errors that already
// carry a service error pass through unchanged.
func StoreError(err error, resource, id, action string) error {
	if err == nil {
		return nil
	}
	if se := svcerrors.GetServiceError(err); se != nil {
		return se
	}

	var fieldErr *domain.FieldError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return svcerrors.NotFound(resource, id)
	case errors.Is(err, storage.ErrRelationMissing):
		return svcerrors.Unavailable(resource+" storage is not set up yet", err)
	case errors.As(err, &fieldErr):
		return svcerrors.Validation(fieldErr.Field, fieldErr.Error())
	default:
		return svcerrors.Internal("failed to "+action, err)
	}
}
