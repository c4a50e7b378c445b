package instance

import (
	"os"

	"github.com/angelmondragon/storefront-backend/pkg/env"
)

const envInstanceID = "STOREFRONT_INSTANCE_ID"

// GetID names this process in logs: STOREFRONT_INSTANCE_ID, then the
// hostname, then "local".
func GetID() string {
	host, _ := os.Hostname()
	return env.Get(fallback(host), envInstanceID)
}

func fallback(host string) string {
	if host == "" {
		return "local"
	}
	return host
}
