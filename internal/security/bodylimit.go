package security

import (
	"net/http"

	"github.com/daikazu/flexicart-sub000/internal/common"
)

// BodyLimit enforces a maximum request payload size.
type BodyLimit struct {
	Max int64
}

// Middleware rejects requests whose declared length exceeds Max with HTTP 413
// and caps the body of everything else, so handlers see *http.MaxBytesError
// when a client streams past the limit.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodePayloadTooLarge, "request body too large", nil)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		}
		next.ServeHTTP(w, r)
	})
}
