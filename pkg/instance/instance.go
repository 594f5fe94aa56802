package instance

import "os"

// ID names the running process in logs. Platform dyno names win over an
// explicit WORKER_ID, then the host name.
func ID() string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
