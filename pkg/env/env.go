// Package env reads raw environment variables for the few spots that run
// before config is loaded. Everything else goes through pkg/config.
package env

import "os"

// Get returns the variable's value, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
