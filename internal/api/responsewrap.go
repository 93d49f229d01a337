package api

import "net/http"

type responseRecorder struct {
	writer        http.ResponseWriter
	status        int
	bytesWritten  int64
	wroteHeader   bool
	errorCategory string
	cacheStatus   string
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{writer: w, status: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header {
	return r.writer.Header()
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.writer.WriteHeader(status)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.writer.Write(data)
	r.bytesWritten += int64(n)
	return n, err
}

func (r *responseRecorder) setErrorCategory(category string) {
	r.errorCategory = category
}

func (r *responseRecorder) setCacheStatus(status string) {
	r.cacheStatus = status
}

type errorCategoryWriter interface {
	setErrorCategory(string)
}

type cacheStatusWriter interface {
	setCacheStatus(string)
}
