// Package instance names the running process for job leases and locks.
package instance

import (
	"fmt"
	"os"
)

// GetID returns FUELTAX_WORKER_ID, else hostname-pid, else "worker-0".
func GetID() string {
	if id := os.Getenv("FUELTAX_WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return "worker-0"
}
