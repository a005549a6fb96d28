package errmsg

import (
	"errors"
	"net/http"
)

type HTTPError struct {
	Code    int
	Message error
}

func NewHTTPError(code int, message error) HTTPError {
	return HTTPError{Code: code, Message: message}
}

func (e *HTTPError) Error() string {
	return e.Message.Error()
}

var (
	ErrRequestPayloadEmpty = NewHTTPError(
		http.StatusBadRequest,
		errors.New("request payload is empty"),
	)

	ErrRequestPayloadInvalid = NewHTTPError(
		http.StatusBadRequest,
		errors.New("request payload is invalid"),
	)
)

var (
	ErrUserAlreadyExists = NewHTTPError(
		http.StatusConflict,
		errors.New("user already exists"),
	)

	ErrUserNotFound = NewHTTPError(
		http.StatusNotFound,
		errors.New("user not found"),
	)

	ErrUserCredentialsInvalid = NewHTTPError(
		http.StatusUnauthorized,
		errors.New("user credentials invalid"),
	)

	ErrUserBalanceNotEnough = NewHTTPError(
		http.StatusPaymentRequired,
		errors.New("user balance not enough funds"),
	)
)

var (
	ErrExchangeAmountInvalid = NewHTTPError(
		http.StatusUnprocessableEntity,
		errors.New("exchange amount must be greater than zero"),
	)

	ErrExchangeCurrencyInvalid = NewHTTPError(
		http.StatusUnprocessableEntity,
		errors.New("exchange currency is invalid"),
	)

	ErrExchangeRateUnavailable = NewHTTPError(
		http.StatusServiceUnavailable,
		errors.New("exchange rate is not resolved yet"),
	)

	ErrExchangeNotAcknowledged = NewHTTPError(
		http.StatusUnprocessableEntity,
		errors.New("exchange send acknowledgement is required"),
	)

	ErrPayoutMethodNotConfigured = NewHTTPError(
		http.StatusPreconditionFailed,
		errors.New("payout method is not configured"),
	)

	ErrAliasDirectoryDisabled = NewHTTPError(
		http.StatusServiceUnavailable,
		errors.New("alias directory is not configured"),
	)
)
