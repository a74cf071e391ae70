// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/mediquery/apperr"
)

// renderError writes err with the status of its kind. Outside production the
// wrapped cause is included as details.
func (s *Server) renderError(ctx *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Wrap(apperr.KindInternal, "Failed to find medical stores", err)
	}

	status := appErr.Status()

	attrs := []any{
		"status", status,
		"kind", appErr.Kind.String(),
		"path", ctx.Request.URL.Path,
		"method", ctx.Request.Method,
		"client", ctx.ClientIP(),
		"request_id", requestIDFrom(ctx),
		"error", appErr.Error(),
	}

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx.Request.Context(), "request failed", attrs...)
	} else {
		s.logger.WarnContext(ctx.Request.Context(), "request failed", attrs...)
	}

	body := gin.H{
		"kind":    appErr.Kind.String(),
		"message": appErr.Message,
	}

	if !s.options.Production() && appErr.Err != nil {
		body["details"] = appErr.Err.Error()
	}

	ctx.JSON(status, gin.H{"success": false, "error": body})
}

func (s *Server) renderValidation(ctx *gin.Context, errs []FieldError) {
	s.logger.WarnContext(ctx.Request.Context(), "invalid request", "path", ctx.Request.URL.Path,
		"request_id", requestIDFrom(ctx), "errors", errs)

	ctx.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request data",
		"errors":  errs,
	})
}
