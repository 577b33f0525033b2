package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"smartspray.io/notifier/internal/notification"
	apperrors "smartspray.io/notifier/internal/pkg/errors"
)

// toAppError maps notification errors onto API errors.
func toAppError(err error, id string) *apperrors.AppError {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, notification.ErrValidation):
		appErr := apperrors.ErrValidation(notification.FieldErrors(err))
		appErr.Err = err
		return appErr
	case errors.Is(err, notification.ErrNotFound):
		appErr := apperrors.ErrNotificationNotFound(id)
		appErr.Err = err
		return appErr
	case errors.Is(err, notification.ErrForbidden):
		return apperrors.ErrForbidden(err)
	case errors.Is(err, notification.ErrInvalidUser):
		return apperrors.ErrInvalidUser(err)
	case errors.Is(err, notification.ErrStoreUnavailable):
		return apperrors.ErrStoreUnavailable(err)
	default:
		return apperrors.ErrInternal(err)
	}
}

// fail records err for the ErrorHandler middleware.
func fail(c *gin.Context, err error) {
	_ = c.Error(toAppError(err, c.Param("id")))
}
