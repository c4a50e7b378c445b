// Package enums holds the string-backed enumerations persisted in the
// database and exposed over the API.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// parse accepts value case-insensitively when it names a member of set.
func parse[T ~string](kind string, set []T, value string) (T, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if i := slices.Index(set, T(value)); i >= 0 {
		return set[i], nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
