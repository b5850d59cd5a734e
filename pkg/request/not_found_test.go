package request

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/stretchr/testify/require"
)

func TestNotFoundHandler(t *testing.T) {
	// Setup logger
	l, err := logging.CommonLogger(logging.NewConfig(`tests`))
	require.NoError(t, err, "Failed to create logger")

	tests := []struct {
		name   string
		w      *httptest.ResponseRecorder
		r      *http.Request
		status int
		want   string
	}{
		{
			name:   "NotFound",
			w:      httptest.NewRecorder(),
			r:      httptest.NewRequest(http.MethodGet, "/", nil),
			status: http.StatusNotFound,
			want:   "{\"Message\":\"Not found\"}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			NotFoundHandler(l).ServeHTTP(tt.w, tt.r)
			require.Equal(t, tt.status, tt.w.Code)
			require.Equal(t, tt.want, tt.w.Body.String())
		})
	}
}

func TestMethodNotAllowedHandler(t *testing.T) {
	l, err := logging.CommonLogger(logging.NewConfig(`tests`))
	require.NoError(t, err, "Failed to create logger")

	w := httptest.NewRecorder()
	MethodNotAllowedHandler(l).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.Equal(t, "{\"Message\":\"Method not allowed\"}\n", w.Body.String())
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestClientWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := NewClientWriter(rec)
	require.Equal(t, http.StatusOK, cw.StatusCode())

	cw.WriteHeader(http.StatusTeapot)
	require.Equal(t, http.StatusTeapot, cw.StatusCode())
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestNewMessage(t *testing.T) {
	require.Equal(t, "100% up", NewMessage("100% up").Message)
	require.Equal(t, "ticket 7 missing", NewMessage("ticket %d missing", 7).Message)
}
