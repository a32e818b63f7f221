// Package httpapi exposes the account operations over JSON HTTP. It owns
// the wire format, cookie handling, and the mapping from error kinds to
// status codes; all domain decisions live in the auth service.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rooftopdev/accountd/internal/apperr"
)

// envelope is the uniform response shape: exactly one of Data or Error set.
type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *wireError `json:"error,omitempty"`
}

type wireError struct {
	Kind    apperr.Kind       `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthentication, apperr.KindTokenExpired:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("response encoding failed")
	}
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, envelope{Data: data})
}

// writeError maps err onto the wire. The client-safe message comes from the
// error kind machinery; the full cause is logged server-side only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.writeJSON(w, statusFor(kind), envelope{Error: &wireError{
		Kind:    kind,
		Message: apperr.MessageOf(err),
		Fields:  apperr.FieldsOf(err),
	}})
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.New(apperr.KindValidation, "request body is not valid JSON")
	}
	return nil
}
