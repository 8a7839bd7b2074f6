package log

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLogBufferWraps(t *testing.T) {
	b := NewLogBuffer(3)
	for i := 1; i <= 5; i++ {
		b.AddEntry(HTTPLogEntry{Status: i})
	}
	got := b.Entries()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []int{3, 4, 5} {
		if got[i].Status != want {
			t.Errorf("entry %d status %d, want %d", i, got[i].Status, want)
		}
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	before := len(GetHTTPLogBuffer().Entries())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

	entries := GetHTTPLogBuffer().Entries()
	if len(entries) != before+1 {
		t.Fatalf("expected one new entry, got %d", len(entries)-before)
	}
	e := entries[len(entries)-1]
	if e.Status != http.StatusTeapot || e.Path != "/api/status" || e.Size != len("short and stout") {
		t.Errorf("unexpected entry %+v", e)
	}
}
