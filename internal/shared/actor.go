package shared

import (
	"context"
	"strconv"
	"strings"
)

// ActorID resolves the acting principal from the request session.
// Every mutating operation requires this value; a missing or unparseable
// user id is rejected rather than defaulted to zero.
func ActorID(ctx context.Context) (int64, error) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return 0, ErrUnauthenticated
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, ErrUnauthenticated
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrUnauthenticated
	}
	return id, nil
}
