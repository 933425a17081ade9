package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/vizql/vizql/internal/dispatch"
	"github.com/vizql/vizql/internal/schema"
	"github.com/vizql/vizql/internal/session"
	"github.com/vizql/vizql/internal/tabular"
)

// writeDomainError maps typed domain failures onto wire status codes. Remote
// infrastructure failures are the only retryable kind.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, dispatch.ErrConnectionNotFound), errors.Is(err, schema.ErrConnectionNotFound):
		writeError(ctx, w, http.StatusBadRequest, "CONNECTION_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, dispatch.ErrInvalidQuery):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), false, nil)
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		writeError(ctx, w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), false, nil)
	default:
		var remoteQuery *dispatch.RemoteQueryError
		var remoteConn *dispatch.RemoteConnectionError
		var localQuery *dispatch.LocalQueryError
		switch {
		case errors.As(err, &remoteQuery):
			writeError(ctx, w, http.StatusBadRequest, "REMOTE_QUERY_FAILED", remoteQuery.Error(), false, nil)
		case errors.As(err, &remoteConn):
			writeError(ctx, w, http.StatusBadGateway, "REMOTE_CONNECTION_FAILED", remoteConn.Error(), true, nil)
		case errors.As(err, &localQuery):
			writeError(ctx, w, http.StatusBadRequest, "LOCAL_QUERY_FAILED", localQuery.Error(), false, nil)
		default:
			writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, nil)
		}
	}
}
