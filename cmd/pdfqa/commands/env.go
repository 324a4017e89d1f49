package commands

import (
	"os"
	"strconv"
)

// getEnvOrDefault returns the value of key, or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt parses key as an int, returning fallback when unset or invalid.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// pick returns flag when the user set it, otherwise the env value or fallback.
func pick(flag string, changed bool, key, fallback string) string {
	if changed {
		return flag
	}
	return getEnvOrDefault(key, fallback)
}

// pickInt is pick for integer flags.
func pickInt(flag int, changed bool, key string, fallback int) int {
	if changed {
		return flag
	}
	return getEnvInt(key, fallback)
}
