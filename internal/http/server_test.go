package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"kvcore/pkg/config"
	"kvcore/pkg/store"
	"kvcore/pkg/table"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	cfg := config.Default()
	cfg.DB.Memtable.ArenaSize = 1 << 16
	cfg.DB.Memtable.FlushThresholdBytes = 1 << 15
	cfg.DB.Skiplist.Seed = 7

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.New(&cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s := NewServer(st, cfg.Server, logger)
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeResp(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func put(t *testing.T, h http.Handler, key, value string) {
	t.Helper()
	rr := do(t, h, http.MethodPut, "/api/kv", url.Values{"key": {key}, "value": {value}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestHealthHandler(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, contentTypeJSON, rr.Header().Get("Content-Type"))
	require.Equal(t, StatusOK, decodeResp(t, rr).Status)
}

func TestPutGetDeleteFlow(t *testing.T) {
	_, h := newTestServer(t)

	put(t, h, "foo", "bar")

	rr := do(t, h, http.MethodGet, "/api/kv?key=foo", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeResp(t, rr)
	require.Equal(t, StatusSuccess, resp.Status)
	require.Equal(t, "bar", resp.Value)

	rr = do(t, h, http.MethodDelete, "/api/kv?key=foo", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, StatusSuccess, decodeResp(t, rr).Status)

	rr = do(t, h, http.MethodGet, "/api/kv?key=foo", nil)
	require.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
	require.Equal(t, StatusError, decodeResp(t, rr).Status)
}

func TestMissingParamsAndMethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodPut, "/api/kv", url.Values{})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/kv", url.Values{"value": {"v"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/kv", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodDelete, "/api/kv", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/filter", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/scan?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/health", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestPutEmptyValue(t *testing.T) {
	_, h := newTestServer(t)

	put(t, h, "empty", "")

	rr := do(t, h, http.MethodGet, "/api/kv?key=empty", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "", decodeResp(t, rr).Value)

	// the batch endpoint stores the same thing
	body := `[{"op":"put","key":"empty2"}]`
	req := httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader(body))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/kv?key=empty2", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestScanHandler(t *testing.T) {
	_, h := newTestServer(t)

	put(t, h, "b", "2")
	put(t, h, "a", "1")
	put(t, h, "c", "3")

	rr := do(t, h, http.MethodGet, "/api/scan?start=b&limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decodeResp(t, rr)
	require.Len(t, resp.Items, 2)
	require.Equal(t, "b", resp.Items[0].Key)
	require.Equal(t, "2", resp.Items[0].Value)
	require.Equal(t, "c", resp.Items[1].Key)
}

func TestFlushStatsAndFilter(t *testing.T) {
	_, h := newTestServer(t)

	put(t, h, "alpha", "1")
	put(t, h, "omega", "2")

	rr := do(t, h, http.MethodPost, "/api/flush", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var stats struct {
		Data store.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.Data.Tables.Tables)
	require.Equal(t, 2, stats.Data.Tables.Keys)
	require.Equal(t, 0, stats.Data.ActiveEntries)

	rr = do(t, h, http.MethodGet, "/api/filter?key=alpha", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var verdicts struct {
		Data []table.Verdict `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &verdicts))
	require.Len(t, verdicts.Data, 1)
	require.True(t, verdicts.Data[0].InRange)
	require.True(t, verdicts.Data[0].MayContain)

	// reads still go through the flushed table
	rr = do(t, h, http.MethodGet, "/api/kv?key=omega", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "2", decodeResp(t, rr).Value)
}

func TestBatchHandler(t *testing.T) {
	_, h := newTestServer(t)

	put(t, h, "old", "x")

	body := `[{"op":"put","key":"a","value":"1"},{"op":"delete","key":"old"}]`
	req := httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/kv?key=a", nil)
	require.Equal(t, "1", decodeResp(t, rr).Value)

	rr = do(t, h, http.MethodGet, "/api/kv?key=old", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	for _, bad := range []string{`not json`, `[{"op":"merge","key":"a"}]`, `[{"op":"put","key":""}]`} {
		req = httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader(bad))
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}
