package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/stockroom-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. It sits outermost, so
// it attaches the request info the inner middleware fill and logs the panic
// with the request id and caller.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, info := withRequestInfo(r.Context())
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				if logg != nil {
					fields := info.fields()
					fields["panic"] = rec
					fields["method"] = r.Method
					fields["path"] = r.URL.Path
					logg.Error(logg.WithFields(ctx, fields), "panic.recovered", err)
				}
				responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
			}()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
