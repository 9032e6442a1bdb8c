// Package response writes the plain-text responses of the public receiver
// routes and maps domain errors onto HTTP status codes.
package response

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	domainerrors "github.com/listenupapp/webmention-receiver/internal/errors"
)

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeXML  = "application/xml; charset=utf-8"
)

// Text writes body as text/plain with the given status code.
func Text(w http.ResponseWriter, status int, body string, logger *slog.Logger) {
	write(w, status, contentTypeText, body, logger)
}

// HTML writes an already rendered HTML document.
func HTML(w http.ResponseWriter, status int, body []byte, logger *slog.Logger) {
	writeBytes(w, status, contentTypeHTML, body, logger)
}

// XML writes an already rendered XML document.
func XML(w http.ResponseWriter, status int, body []byte, logger *slog.Logger) {
	writeBytes(w, status, contentTypeXML, body, logger)
}

// Created writes 201 with a Location header and the location as the body.
func Created(w http.ResponseWriter, location string, logger *slog.Logger) {
	w.Header().Set("Location", location)
	Text(w, http.StatusCreated, location, logger)
}

// Error writes a plain-text error response with the given status code.
func Error(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	Text(w, status, message, logger)
}

// BadRequest writes a 400 Bad Request response.
func BadRequest(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusBadRequest, message, logger)
}

// NotFound writes the 404 body used for every unknown resource.
func NotFound(w http.ResponseWriter, logger *slog.Logger) {
	Error(w, http.StatusNotFound, "404 not found", logger)
}

// TooManyRequests writes a 429 response.
func TooManyRequests(w http.ResponseWriter, logger *slog.Logger) {
	Error(w, http.StatusTooManyRequests, "too many requests", logger)
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, logger *slog.Logger) {
	Error(w, http.StatusInternalServerError, "internal server error", logger)
}

// HandleError writes an appropriate response for err. Domain errors keep
// their message; anything internal is logged and answered generically.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) && domainErr.Code != domainerrors.CodeInternal {
		if domainErr.Code == domainerrors.CodeNotFound {
			NotFound(w, logger)
			return
		}
		Error(w, domainErr.HTTPStatus(), domainErr.Message, logger)
		return
	}

	if logger != nil {
		logger.Error("request failed", "error", err)
	}
	InternalError(w, logger)
}

func write(w http.ResponseWriter, status int, contentType, body string, logger *slog.Logger) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil && logger != nil {
		logger.Debug("failed to write response", "error", err)
	}
}

func writeBytes(w http.ResponseWriter, status int, contentType string, body []byte, logger *slog.Logger) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil && logger != nil {
		logger.Debug("failed to write response", "error", err)
	}
}
