// Package errs builds coded errors with samber/oops and maps them onto HTTP
// status codes at the handler boundary.
package errs

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/oops"
)

const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUpstream     = "UPSTREAM"
	CodeUnavailable  = "UNAVAILABLE"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
)

func New(code, domain, format string, args ...any) error {
	return oops.Code(code).In(domain).Errorf(format, args...)
}

func Wrap(err error, code, domain, format string, args ...any) error {
	return oops.Code(code).In(domain).Wrapf(err, format, args...)
}

func InvalidInput(domain, format string, args ...any) error {
	return New(CodeInvalidInput, domain, format, args...)
}

func NotFound(domain, format string, args ...any) error {
	return New(CodeNotFound, domain, format, args...)
}

func Conflict(domain, format string, args ...any) error {
	return New(CodeConflict, domain, format, args...)
}

// CodeOf returns the code attached to err, or "" for plain errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	oe, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := fmt.Sprint(oe.Code())
	if code == "<nil>" {
		return ""
	}
	return code
}

func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// HTTPStatus picks the response status for err.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return fiber.StatusBadRequest
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeConflict:
		return fiber.StatusConflict
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeUpstream:
		return fiber.StatusBadGateway
	case CodeUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Fiber converts err into a *fiber.Error carrying the mapped status.
func Fiber(err error) error {
	return fiber.NewError(HTTPStatus(err), err.Error())
}
