// Package httputil holds the REST adapter's shared response envelope and request logging middleware.
package httputil

import (
	"github.com/gofiber/fiber/v3"

	"github.com/boeni-industries/aico-gateway/internal/ferror"
)

// SuccessResponse wraps successful API responses.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorBody holds structured error details.
type ErrorBody struct {
	Code    ferror.Kind `json:"code"`
	Message string      `json:"message"`
}

// ErrorResponse wraps failed API responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Success sends a 200 JSON response with the given data.
func Success(c fiber.Ctx, data any) error {
	return c.JSON(SuccessResponse{Data: data})
}

// SuccessStatus sends a JSON response with a custom status code.
func SuccessStatus(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessResponse{Data: data})
}

// Fail sends a JSON error response with the given status, error kind, and message.
func Fail(c fiber.Ctx, status int, code ferror.Kind, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}

// FailErr sends a JSON error response derived from a *ferror.Error, using its Kind's mapped HTTP status.
func FailErr(c fiber.Ctx, err *ferror.Error) error {
	return Fail(c, err.Kind.HTTPStatus(), err.Kind, err.Message)
}
