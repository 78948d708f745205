package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type credentialKey struct{}

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errMalformedBearer      = errors.New("authorization header is not a bearer token")
)

// withBearer rejects requests without a well-formed bearer header and hands the raw
// token to next. Verification belongs to the post service, which maps a bad token to
// auth.ErrInvalidCredential.
func (r *Router) withBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		token, err := bearerToken(req.Header.Get("Authorization"))
		if err != nil {
			r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(req.Context(), credentialKey{}, token)
		next(w, req.WithContext(ctx))
	}
}

func credentialFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(credentialKey{}).(string)
	return token, ok && token != ""
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuthorization
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errMalformedBearer
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", errMalformedBearer
	}
	return token, nil
}
