package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/dtorcivia/calbook/internal/response"
	"github.com/dtorcivia/calbook/internal/util"
)

// Recovery returns middleware that recovers from panics.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				util.Error("Panic recovered",
					"error", fmt.Sprintf("%v", err),
					"path", r.URL.Path,
					"method", r.Method,
					"stack", string(debug.Stack()),
				)
				response.WriteInternalError(w, "An unexpected error occurred")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
