package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeStatusRecorder struct {
	statuses []int
}

func (f *fakeStatusRecorder) RecordHTTPStatus(statusCode int) {
	f.statuses = append(f.statuses, statusCode)
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{
			name:    "暗黙の200",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			want:    http.StatusOK,
		},
		{
			name:    "明示的な404",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			want:    http.StatusNotFound,
		},
		{
			name:    "303リダイレクト",
			handler: func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/", http.StatusSeeOther) },
			want:    http.StatusSeeOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeStatusRecorder{}
			handler := NewMetricsMiddleware(rec)(tt.handler)

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			if len(rec.statuses) != 1 || rec.statuses[0] != tt.want {
				t.Errorf("recorded = %v, want [%d]", rec.statuses, tt.want)
			}
		})
	}
}
