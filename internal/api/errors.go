package api

import (
	"context"
	stderrors "errors"

	"birthday-wall/backend/internal/service"
	"birthday-wall/backend/pkg/blob"
	"birthday-wall/backend/pkg/errors"
	"birthday-wall/backend/pkg/resilience"
)

// storeError maps a failed blob store call to the error shown to clients
func storeError(err error, message string) *errors.AppError {
	switch {
	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return errors.NewServiceUnavailableError("BLOB_STORE_UNAVAILABLE", "Storage is temporarily unavailable, try again shortly").Wrap(err)
	case stderrors.Is(err, service.ErrCorruptCollection):
		return errors.NewInternalServerError("CORRUPT_COLLECTION", "The stored message collection could not be read").Wrap(err)
	case stderrors.Is(err, context.Canceled):
		return errors.NewError(499, "REQUEST_CANCELED", "Request canceled").Wrap(err)
	case stderrors.Is(err, blob.ErrInvalidKey):
		return errors.NewBadRequestError("INVALID_KEY", "Invalid blob key").Wrap(err)
	}
	return errors.NewBadGatewayError("BLOB_STORE_ERROR", message).Wrap(err)
}

// imageError maps ImageService failures
func imageError(err error) *errors.AppError {
	switch {
	case stderrors.Is(err, service.ErrNoImageData):
		return errors.NewBadRequestError("NO_IMAGE_DATA", "No image data provided")
	case stderrors.Is(err, service.ErrInvalidImage):
		return errors.NewBadRequestError("INVALID_IMAGE", "Image data must be a base64 data URL").Wrap(err)
	case stderrors.Is(err, service.ErrImageTooLarge):
		return errors.NewPayloadTooLargeError("IMAGE_TOO_LARGE", "Image is too large").Wrap(err)
	}
	return storeError(err, "Failed to upload image")
}

func invalidRequest(err error) *errors.AppError {
	return errors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").Wrap(err)
}
