package httpapi

import "time"

const defaultMaxBodyBytes int64 = 1 << 20

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// requestTimeout bounds how long /load and /run wait for their terminal
// event. Zero means no limit beyond server/connection timeouts.
var requestTimeout time.Duration

// SetRequestTimeout sets the command timeout (<= 0 disables).
func SetRequestTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	requestTimeout = d
}

// CORS configuration (opt-in). With no origins no CORS middleware is added.
var corsAllowedOrigins []string

// SetCORSOrigins configures the origins allowed to call the API.
func SetCORSOrigins(origins []string) {
	corsAllowedOrigins = append([]string(nil), origins...)
}
