package validators

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ParseQueryInt returns def when key is absent and rejects values outside
// [lo, hi] rather than clamping them.
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		msg := fmt.Sprintf("%s must be an integer between %d and %d", key, lo, hi)
		return 0, invalidParam(key, msg, map[string]any{"min": lo, "max": hi})
	}
	return n, nil
}

// ParseUUIDParam reads the chi path parameter name.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, invalidParam(name, name+" must be a non-nil uuid", nil)
	}
	return id, nil
}

func invalidParam(field, msg string, details map[string]any) *pkgerrors.Error {
	if details == nil {
		details = map[string]any{}
	}
	details["field"] = field
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}
