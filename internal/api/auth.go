package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	errNoCredentials  = errors.New("missing Authorization header")
	errBadCredentials = errors.New("expected Authorization: Bearer <key>")
	errWrongKey       = errors.New("invalid API key")
)

// bearerKey returns the key from an "Authorization: Bearer <key>" header.
func bearerKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoCredentials
	}
	scheme, key, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadCredentials
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errBadCredentials
	}
	return key, nil
}

// keyMatches compares in constant time. An empty configured key matches
// nothing.
func keyMatches(provided, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}

// authMiddleware rejects requests that do not carry the configured key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := bearerKey(r)
		if err == nil && !keyMatches(key, s.config.APIKey) {
			err = errWrongKey
		}
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="ensemblectl"`)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
