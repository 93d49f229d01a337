package obs

import "time"

type RequestContext struct {
	RequestID     string
	Method        string
	Path          string
	Route         string
	Status        int
	Duration      time.Duration
	BytesOut      int64
	CacheStatus   string
	ErrorCategory string
	UserAgent     string
	RemoteAddr    string
}
