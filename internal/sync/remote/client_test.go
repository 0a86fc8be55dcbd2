package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niyaskv/offsync/internal/errors"
	"github.com/niyaskv/offsync/internal/session"
)

func testSession() session.Session {
	return session.Session{TenantID: "tenant-1", Token: "bearer-token"}
}

func fastClient(url string) *Client {
	return NewClient(url, "api-key", WithBaseDelay(time.Millisecond))
}

func TestUploadSendsHeadersAndInjectsTenant(t *testing.T) {
	var got struct {
		headers http.Header
		body    map[string]interface{}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/patients", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	res := fastClient(srv.URL).Upload(context.Background(), testSession(), "patients", []byte(`{"id":"rec-1"}`))
	require.True(t, res.Success, res.Message)

	assert.Equal(t, "api-key", got.headers.Get("apikey"))
	assert.Equal(t, "Bearer bearer-token", got.headers.Get("Authorization"))
	assert.Equal(t, "return=representation", got.headers.Get("Prefer"))
	assert.Equal(t, "tenant-1", got.body["tenant_id"])
}

func TestUploadFallsBackToAPIKeyAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	res := fastClient(srv.URL).Upload(context.Background(), session.Session{TenantID: "tenant-1"}, "patients", []byte(`{"id":"rec-1"}`))
	assert.True(t, res.Success)
}

func TestUploadConflictIsSuccess(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	res := fastClient(srv.URL).Upload(context.Background(), testSession(), "patients", []byte(`{"id":"rec-1"}`))
	assert.True(t, res.Success, "duplicate insert resolves as already delivered")
	assert.Equal(t, "record already exists", res.Message)
	assert.Equal(t, 1, calls, "no retry on 409")
}

func TestRetryOnServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	res := fastClient(srv.URL).Upload(context.Background(), testSession(), "patients", []byte(`{"id":"rec-1"}`))
	assert.True(t, res.Success)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts, "two failures then success")
}

func TestRetryCapExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key", WithBaseDelay(time.Millisecond), WithMaxAttempts(3))
	res := c.Upload(context.Background(), testSession(), "patients", []byte(`{"id":"rec-1"}`))
	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrNetworkRetryable, res.ErrorKind)
	assert.Equal(t, 3, calls)
}

func TestTerminalClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	res := fastClient(srv.URL).Update(context.Background(), testSession(), "patients", "rec-1", []byte(`{"id":"rec-1"}`))
	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrRemoteTerminal, res.ErrorKind)
	assert.Equal(t, 1, calls)
}

func TestAuthErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	res := fastClient(srv.URL).Delete(context.Background(), testSession(), "patients", "rec-1")
	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrRemoteAuth, res.ErrorKind)
}

func TestUpdateAndDeleteAreTenantScoped(t *testing.T) {
	var paths []string
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		queries = append(queries, r.URL.RawQuery)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := fastClient(srv.URL)
	require.True(t, c.Update(context.Background(), testSession(), "patients", "rec-1", []byte(`{"id":"rec-1"}`)).Success)
	require.True(t, c.Delete(context.Background(), testSession(), "patients", "rec-1").Success)

	require.Len(t, paths, 2)
	assert.Equal(t, "PUT /rest/v1/patients", paths[0])
	assert.Equal(t, "DELETE /rest/v1/patients", paths[1])
	for _, q := range queries {
		assert.Contains(t, q, "id=eq.rec-1")
		assert.Contains(t, q, "tenant_id=eq.tenant-1")
	}
}

func TestCallsRequireTenant(t *testing.T) {
	c := fastClient("http://unreachable.invalid")

	res := c.Upload(context.Background(), session.Session{}, "patients", []byte(`{}`))
	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrTenantMissing, res.ErrorKind)

	_, err := c.DownloadDelta(context.Background(), session.Session{}, "patients", time.Time{})
	assert.True(t, errors.Is(err, errors.ErrTenantMissing))
}

func TestDownloadDeltaQueryShape(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.tenant-1", q.Get("tenant_id"))
		assert.Equal(t, "gt.2026-03-01T12:00:00Z", q.Get("updated_at"))
		assert.Equal(t, "updated_at.asc", q.Get("order"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	records, err := fastClient(srv.URL).DownloadDelta(context.Background(), testSession(), "patients", since)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDownloadDeltaFullWhenNoWatermark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("updated_at"), "no watermark, no filter")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).DownloadDelta(context.Background(), testSession(), "patients", time.Time{})
	require.NoError(t, err)
}

func TestDownloadDeltaSkipsUnparsableRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"rec-1","tenant_id":"tenant-1","updated_at":"2026-03-01T12:00:00Z"},
			{"tenant_id":"tenant-1"},
			{"id":"rec-2","tenant_id":"tenant-1","updated_at":"2026-03-01T12:01:00Z"}
		]`))
	}))
	defer srv.Close()

	records, err := fastClient(srv.URL).DownloadDelta(context.Background(), testSession(), "patients", time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-1", records[0].ID)
	assert.Equal(t, "rec-2", records[1].ID)
}

func TestDownloadDeltaMalformedBodyNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"not":"an array"`))
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).DownloadDelta(context.Background(), testSession(), "patients", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPayloadInvalid))
	assert.Equal(t, 1, calls, "a broken body stays broken, no retry")
}

func TestNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	c := NewClient(srv.URL, "api-key", WithBaseDelay(time.Millisecond), WithMaxAttempts(2))
	res := c.Upload(context.Background(), testSession(), "patients", []byte(`{"id":"rec-1"}`))
	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrNetworkRetryable, res.ErrorKind)
}
