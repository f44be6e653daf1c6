package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/football-gateway/pkg/client"
	"github.com/Sternrassler/football-gateway/pkg/favorites"
	"github.com/Sternrassler/football-gateway/pkg/gateway"
	"github.com/Sternrassler/football-gateway/pkg/quota"
)

type mappedError struct {
	HTTPStatus int
	Reason     string
}

type errorBody struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type matchesResponse struct {
	Matches   []gateway.MatchSummary `json:"matches"`
	Favorites []favorites.Favorite   `json:"favorites"`
	Error     *errorBody             `json:"error,omitempty"`
}

type teamResponse struct {
	Team  gateway.TeamDetail `json:"team"`
	Error *errorBody         `json:"error,omitempty"`
}

type errorResponse struct {
	Error *errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

// errorFor maps err to a status code and body. Quota denials also set the
// rate limit headers on w.
func errorFor(w http.ResponseWriter, r *http.Request, err error) (int, *errorBody) {
	mapped := mapError(err)

	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		quota.WriteHeaders(w, exceeded.Decision, time.Now())
	}

	logger := hlog.FromRequest(r)
	if mapped.HTTPStatus >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("reason", mapped.Reason).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Str("reason", mapped.Reason).Msg("Request rejected")
	}

	message := err.Error()
	if mapped.HTTPStatus == http.StatusInternalServerError {
		message = "internal server error"
	}
	return mapped.HTTPStatus, &errorBody{
		Code:    mapped.HTTPStatus,
		Reason:  mapped.Reason,
		Message: message,
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorFor(w, r, err)
	writeJSON(w, status, errorResponse{Error: body})
}

func mapError(err error) mappedError {
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		return mappedError{HTTPStatus: http.StatusTooManyRequests, Reason: "quotaExceeded"}
	case gateway.IsValidationError(err), errors.Is(err, favorites.ErrInvalidFavorite):
		return mappedError{HTTPStatus: http.StatusBadRequest, Reason: "invalidInput"}
	case errors.Is(err, gateway.ErrNoMatches):
		return mappedError{HTTPStatus: http.StatusNotFound, Reason: "notFound"}
	case errors.Is(err, client.ErrUpstreamUnreachable):
		return mappedError{HTTPStatus: http.StatusServiceUnavailable, Reason: "upstreamUnavailable"}
	case errors.Is(err, quota.ErrQuotaUnavailable):
		return mappedError{HTTPStatus: http.StatusServiceUnavailable, Reason: "quotaUnavailable"}
	case errors.Is(err, client.ErrRetryExhausted):
		return mappedError{HTTPStatus: http.StatusBadGateway, Reason: "upstreamRateLimited"}
	case client.IsUpstreamError(err):
		return mappedError{HTTPStatus: http.StatusBadGateway, Reason: "upstreamError"}
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, client.ErrContextCancelled):
		return mappedError{HTTPStatus: http.StatusGatewayTimeout, Reason: "timeout"}
	default:
		return mappedError{HTTPStatus: http.StatusInternalServerError, Reason: "internalError"}
	}
}
