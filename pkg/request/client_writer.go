package request

import "net/http"

// ClientWriter is a http.ResponseWriter that remembers the status code it wrote.
type ClientWriter struct {
	http.ResponseWriter

	statusCode int
}

// NewClientWriter wraps w. The status code is 200 until WriteHeader says otherwise.
func NewClientWriter(w http.ResponseWriter) *ClientWriter {
	return &ClientWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (c *ClientWriter) WriteHeader(code int) {
	c.statusCode = code
	c.ResponseWriter.WriteHeader(code)
}

// StatusCode returns the status code sent to the client.
func (c *ClientWriter) StatusCode() int {
	return c.statusCode
}
