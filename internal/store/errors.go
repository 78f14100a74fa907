package store

import (
	"errors"

	"mes-execution-backend/internal/apperr"
)

// Classify converts a store error into the apperr taxonomy. entity and id name
// the aggregate the failed call was about.
func Classify(err error, entity, id, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound(entity, id)
	case errors.Is(err, ErrVersionConflict):
		return apperr.Conflict("%s %s was modified concurrently, refetch and retry", entity, id).WithIDs(id)
	case errors.Is(err, ErrDuplicate):
		return apperr.Conflict("%s %s conflicts with an existing record", entity, id).WithIDs(id)
	}
	return apperr.FromContext(err, op)
}
