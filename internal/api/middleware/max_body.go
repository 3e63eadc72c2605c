package middleware

import (
	"fmt"
	"net/http"

	"github.com/talentboard/supportbot/internal/api"
	"github.com/talentboard/supportbot/internal/domain"
)

// MaxBodyBytes caps the body of POST, PUT and PATCH requests. Chat questions
// with their history are the largest bodies the API accepts; anything
// bigger is answered with 413 and a VALIDATION_ERROR envelope.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil || !hasBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.JSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{
					Error: fmt.Sprintf("request body exceeds %d bytes", limit),
					Code:  domain.ErrCodeValidation,
				})
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}
