package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/yurykabanov/securevault/pkg/appcontext"
)

const (
	requestIdHeader    = "X-Request-Id"
	maxRequestIdLength = 64
)

// WithRequestId propagates the caller's X-Request-Id or assigns a new one.
// Overlong ids are replaced so they cannot flood the logs.
func WithRequestId(next http.Handler, nextRequestId func() string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get(requestIdHeader)

		if requestId == "" || len(requestId) > maxRequestIdLength {
			requestId = nextRequestId()
		}

		ctx := appcontext.WithRequestId(r.Context(), requestId)

		w.Header().Set(requestIdHeader, requestId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func DefaultRequestIdProvider() string {
	var buf = make([]byte, 16)
	_, err := rand.Read(buf)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
