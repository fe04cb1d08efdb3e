package config

import (
	"os"
	"strings"
)

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
