package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/middleware"
	"github.com/stemsi/webexam/internal/response"
	"github.com/stemsi/webexam/internal/service"
)

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindUnauthorized:
		return http.StatusForbidden
	case service.KindInvalidOperation:
		return http.StatusConflict
	case service.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail renders err. Domain errors carry their own code; anything else is
// logged and reported as an internal error without details.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	var de *service.DomainError
	if errors.As(err, &de) {
		status := statusFor(de.Kind)
		if de.Code == response.ErrInvalidCredentials {
			status = http.StatusUnauthorized
		}
		response.Fail(c, status, de.Code)
		return
	}

	log.Error().Err(err).
		Str("request_id", response.GetRequestID(c)).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Msg("Request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

// actor returns the authenticated caller, or renders 401 and reports false.
func actor(c *gin.Context) (service.Actor, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return service.Actor{}, false
	}
	return claims.Actor(), true
}

// uuidParam parses a path parameter, rendering 400 on failure.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// intParam parses a positive integer path parameter, rendering 400 on failure.
func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// parseUUIDs parses a list of ids, reporting false if any is malformed.
func parseUUIDs(raw []string) ([]uuid.UUID, bool) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
