package rp

import (
	"errors"
	"net/http"
)

// LoginHandler starts a login attempt and redirects the user agent to the
// provider's authorization endpoint.
func (c *Client) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, authURL, err := c.Begin()
		if err != nil {
			c.logger.Error("failed to start login", "error", err)
			http.Error(w, "failed to start login", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// CallbackHandler completes the flow when the provider redirects back.
// onSuccess receives the verified identity; onError receives the failure.
// A nil onError writes a plain error response with a status derived from
// the failure class.
func (c *Client) CallbackHandler(onSuccess func(http.ResponseWriter, *http.Request, *Identity), onError func(http.ResponseWriter, *http.Request, error)) http.HandlerFunc {
	if onError == nil {
		onError = defaultErrorHandler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := c.Callback(r.Context(), CallbackParamsFromRequest(r))
		if err != nil {
			onError(w, r, err)
			return
		}
		onSuccess(w, r, identity)
	}
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, ErrStateMismatch),
		errors.Is(err, ErrExpiredRequest),
		errors.Is(err, ErrMissingCode):
		status = http.StatusBadRequest
	case errors.Is(err, ErrInvalidIDToken),
		errors.Is(err, ErrNonceMismatch),
		errors.Is(err, ErrMissingIDToken):
		status = http.StatusUnauthorized
	}
	http.Error(w, "login failed", status)
}
