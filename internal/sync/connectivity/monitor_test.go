package connectivity

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyServer serves the status code currently set, so tests can flip the
// endpoint between reachable and failing.
type flakyServer struct {
	mu     sync.Mutex
	status int
	srv    *httptest.Server
}

func newFlakyServer(t *testing.T) *flakyServer {
	t.Helper()
	f := &flakyServer{status: http.StatusNoContent}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.status
		f.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *flakyServer) setStatus(code int) {
	f.mu.Lock()
	f.status = code
	f.mu.Unlock()
}

func TestCheckNowTracksReachability(t *testing.T) {
	f := newFlakyServer(t)
	m := NewMonitor(f.srv.URL)

	assert.False(t, m.IsConnected(), "disconnected until first probe")
	assert.True(t, m.CheckNow())
	assert.True(t, m.IsConnected())

	f.setStatus(http.StatusInternalServerError)
	assert.False(t, m.CheckNow())
	assert.False(t, m.IsConnected())
}

func TestListenersFireOnlyOnFlips(t *testing.T) {
	f := newFlakyServer(t)
	m := NewMonitor(f.srv.URL)

	var events []bool
	m.OnChange(func(connected bool) {
		events = append(events, connected)
	})

	m.CheckNow() // offline -> online
	m.CheckNow() // still online, no event
	m.CheckNow()

	f.setStatus(http.StatusBadGateway)
	m.CheckNow() // online -> offline
	m.CheckNow() // still offline, no event

	f.setStatus(http.StatusOK)
	m.CheckNow() // offline -> online

	require.Equal(t, []bool{true, false, true}, events)
}

func TestUnreachableEndpointReadsAsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	m := NewMonitor(srv.URL)
	assert.False(t, m.CheckNow())
}

func TestStartStopIdempotent(t *testing.T) {
	f := newFlakyServer(t)
	m := NewMonitor(f.srv.URL)

	m.Start()
	m.Start()
	m.Stop()
	m.Stop()
}
