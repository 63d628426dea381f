package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ConnectErrorBadInput            = "CONNECT_BAD_INPUT"
	ConnectErrorStateInvalid        = "CONNECT_STATE_INVALID"
	ConnectErrorNoConnection        = "CONNECT_NO_CONNECTION"
	ConnectErrorNoDestination       = "CONNECT_NO_DESTINATION"
	ConnectErrorCredentialCorrupted = "CONNECT_CREDENTIAL_CORRUPTED"
	ConnectErrorExchangeFailed      = "CONNECT_EXCHANGE_FAILED"
	ConnectErrorRefreshFailed       = "CONNECT_REFRESH_FAILED"
	ConnectErrorStoreFailed         = "CONNECT_STORE_FAILED"
	ConnectErrorTransient           = "CONNECT_TRANSIENT"
	ConnectErrorInternal            = "CONNECT_INTERNAL_ERROR"
)

func connectErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureConnectErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrConnectionNotFound):
		return newConnectError(err.Error(), goerrors.CategoryNotFound, ConnectErrorNoConnection)
	case errors.Is(err, ErrDestinationNotFound):
		return newConnectError(err.Error(), goerrors.CategoryNotFound, ConnectErrorNoDestination)
	case errors.Is(err, context.DeadlineExceeded):
		return newConnectError(err.Error(), goerrors.CategoryExternal, ConnectErrorTransient)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "oauth state"), strings.Contains(msg, "login state"):
		return newConnectError(err.Error(), goerrors.CategoryAuth, ConnectErrorStateInvalid)
	case strings.Contains(msg, "message authentication failed"), strings.Contains(msg, "authentication failed"):
		return newConnectError(err.Error(), goerrors.CategoryAuth, ConnectErrorCredentialCorrupted)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newConnectError(err.Error(), goerrors.CategoryBadInput, ConnectErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureConnectErrorEnvelope(mapped)
}

func newConnectError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureConnectErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureConnectErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = connectHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultConnectTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultConnectTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ConnectErrorBadInput
	case goerrors.CategoryNotFound:
		return ConnectErrorNoConnection
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ConnectErrorRefreshFailed
	case goerrors.CategoryExternal:
		return ConnectErrorTransient
	case goerrors.CategoryConflict, goerrors.CategoryOperation:
		return ConnectErrorStoreFailed
	default:
		return ConnectErrorInternal
	}
}

func connectHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func textCodeOf(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// IsRefreshFailure reports an authoritative provider rejection of the refresh
// grant. Retrying without re-authentication will not succeed.
func IsRefreshFailure(err error) bool {
	return textCodeOf(err) == ConnectErrorRefreshFailed
}

// IsTransient reports a timeout or network failure on an external call; the
// caller may retry.
func IsTransient(err error) bool {
	return textCodeOf(err) == ConnectErrorTransient
}

// IsCredentialCorrupted reports that a stored secret failed authenticated
// decryption, typically after the process key changed underneath the record.
func IsCredentialCorrupted(err error) bool {
	return textCodeOf(err) == ConnectErrorCredentialCorrupted
}

func IsNoConnection(err error) bool {
	return textCodeOf(err) == ConnectErrorNoConnection || errors.Is(err, ErrConnectionNotFound)
}

func IsNoDestination(err error) bool {
	return textCodeOf(err) == ConnectErrorNoDestination || errors.Is(err, ErrDestinationNotFound)
}
