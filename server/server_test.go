package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"logserver/daterange"
	"logserver/storage"
)

func newSQLiteServer(t *testing.T, opts ...storage.Option) (*httptest.Server, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "log.db"), zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ts := httptest.NewServer(New(store, zap.NewNop()).Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func do(t *testing.T, method, rawURL string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, rawURL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func getJSON(t *testing.T, rawURL string, v any) {
	t.Helper()
	code, body := do(t, http.MethodGet, rawURL)
	require.Equal(t, http.StatusOK, code, body)
	require.NoError(t, json.Unmarshal([]byte(body), v), body)
}

func TestAppendThenQuery(t *testing.T) {
	ts, _ := newSQLiteServer(t)

	for _, v := range []string{"10", "30", "20"} {
		code, body := do(t, http.MethodPost, ts.URL+"/temp?data="+v)
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, body)
	}

	// The appends share the current second, so widen the default window.
	end := url.QueryEscape(daterange.Format(time.Now().Add(time.Minute)))
	rng := "&end=" + end

	var count map[string]int64
	getJSON(t, ts.URL+"/status?"+rng[1:], &count)
	assert.EqualValues(t, 3, count["COUNT(*)"])

	var rows []storage.Reading
	getJSON(t, ts.URL+"/data?stream=temp"+rng, &rows)
	assert.Len(t, rows, 3)

	var hi map[string]any
	getJSON(t, ts.URL+"/max?stream=temp"+rng, &hi)
	assert.Equal(t, 30.0, hi["MAX(data)"])
	assert.NotNil(t, hi["time"])

	var lo map[string]any
	getJSON(t, ts.URL+"/min?stream=temp"+rng, &lo)
	assert.Equal(t, 10.0, lo["MIN(data)"])

	var avg map[string]*float64
	getJSON(t, ts.URL+"/avg?stream=temp"+rng, &avg)
	require.NotNil(t, avg["AVG(data)"])
	assert.InDelta(t, 20.0, *avg["AVG(data)"], 1e-9)

	var latest map[string]any
	getJSON(t, ts.URL+"/latest?stream=temp", &latest)
	assert.Equal(t, 20.0, latest["data"])
	assert.Contains(t, latest, "time")
}

func TestLatestAfterAppend(t *testing.T) {
	ts, _ := newSQLiteServer(t)

	code, _ := do(t, http.MethodPost, ts.URL+"/temp?data=21.5")
	require.Equal(t, http.StatusOK, code)

	var latest struct {
		Time string  `json:"time"`
		Data float64 `json:"data"`
	}
	getJSON(t, ts.URL+"/latest?stream=temp", &latest)
	assert.Equal(t, 21.5, latest.Data)

	at, err := daterange.Parse(latest.Time, time.Local)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), at, 5*time.Second)
}

func TestEmptyResults(t *testing.T) {
	ts, _ := newSQLiteServer(t)

	code, body := do(t, http.MethodGet, ts.URL+"/data?stream=unknown&day=2021-01-01")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)

	code, body = do(t, http.MethodGet, ts.URL+"/avg?stream=unknown&day=2021-01-01")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"AVG(data)": null}`, body)

	code, body = do(t, http.MethodGet, ts.URL+"/max?stream=unknown")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"time": null, "MAX(data)": null}`, body)

	code, body = do(t, http.MethodGet, ts.URL+"/latest?stream=unknown")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `null`, body)
}

func TestTextAndMissingData(t *testing.T) {
	ts, _ := newSQLiteServer(t)

	code, _ := do(t, http.MethodPost, ts.URL+"/door?data=open")
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, http.MethodPost, ts.URL+"/door")
	require.Equal(t, http.StatusOK, code)

	end := url.QueryEscape(daterange.Format(time.Now().Add(time.Minute)))
	_, body := do(t, http.MethodGet, ts.URL+"/data?stream=door&end="+end)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "open", rows[0]["data"])
	assert.Nil(t, rows[1]["data"])
}

func TestNonCanonicalNumbersStayText(t *testing.T) {
	ts, _ := newSQLiteServer(t)

	for _, v := range []string{"007", "1e3", "21.5"} {
		code, _ := do(t, http.MethodPost, ts.URL+"/code?data="+url.QueryEscape(v))
		require.Equal(t, http.StatusOK, code)
	}

	end := url.QueryEscape(daterange.Format(time.Now().Add(time.Minute)))
	_, body := do(t, http.MethodGet, ts.URL+"/data?stream=code&end="+end)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "007", rows[0]["data"])
	assert.Equal(t, "1e3", rows[1]["data"])
	assert.Equal(t, 21.5, rows[2]["data"])
}

func TestDayWindow(t *testing.T) {
	day := time.Date(2021, 6, 1, 0, 0, 0, 0, time.Local)
	var (
		mu    sync.Mutex
		times = []time.Time{day, day.Add(12 * time.Hour), day.Add(24 * time.Hour)}
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		next := times[0]
		times = times[1:]
		return next
	}
	ts, _ := newSQLiteServer(t, storage.WithClock(clock))

	for i := 0; i < 3; i++ {
		code, _ := do(t, http.MethodPost, ts.URL+"/temp?data=1")
		require.Equal(t, http.StatusOK, code)
	}

	var rows []storage.Reading
	getJSON(t, ts.URL+"/data?stream=temp&day=2021-06-01", &rows)
	require.Len(t, rows, 1, "midnight is excluded, next midnight is another day")
	assert.Equal(t, "2021-06-01 12:00:00", rows[0].Time)
}

func TestRangeEcho(t *testing.T) {
	ts, _ := newSQLiteServer(t)

	var rng [2]string
	getJSON(t, ts.URL+"/ptest?day=2021-01-01&start=x", &rng)
	assert.Equal(t, [2]string{"2021-01-01 00:00:00", "2021-01-01 23:59:59"}, rng)
}

func TestUnmatchedRoutes(t *testing.T) {
	ts, _ := newSQLiteServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/a/b"},
		{http.MethodPut, "/status"},
		{http.MethodDelete, "/temp"},
		{http.MethodPost, "/a/b"},
	} {
		code, body := do(t, tc.method, ts.URL+tc.path)
		assert.Equal(t, http.StatusNotFound, code, "%s %s", tc.method, tc.path)
		assert.Empty(t, body)
	}
}

func TestMetricsAndRequestID(t *testing.T) {
	ts, _ := newSQLiteServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	_, _ = do(t, http.MethodGet, ts.URL+"/nope")
	_, _ = do(t, http.MethodPost, ts.URL+"/temp?data=1")

	code, body := do(t, http.MethodGet, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `logserver_http_requests_total{code="200",route="/status"} 1`)
	assert.Contains(t, body, `logserver_http_requests_total{code="404",route="unmatched"} 1`)
	assert.Contains(t, body, `logserver_readings_appended_total{kind="number"} 1`)
}

// faultyStore fails the operations named in fail and answers the rest.
type faultyStore struct {
	fail map[string]bool
}

var errEngine = errors.New("disk I/O error")

func (f *faultyStore) err(op string) error {
	if f.fail[op] {
		return errEngine
	}
	return nil
}

func (f *faultyStore) Append(context.Context, string, storage.Value) error { return f.err("append") }

func (f *faultyStore) CountInRange(context.Context, daterange.Range) (int64, error) {
	return 7, f.err("count")
}

func (f *faultyStore) FetchInRange(context.Context, string, daterange.Range) ([]storage.Reading, error) {
	if err := f.err("fetch"); err != nil {
		return nil, err
	}
	return []storage.Reading{}, nil
}

func (f *faultyStore) MaxInRange(context.Context, string, daterange.Range) (storage.Extreme, error) {
	return storage.Extreme{}, f.err("max")
}

func (f *faultyStore) MinInRange(context.Context, string, daterange.Range) (storage.Extreme, error) {
	return storage.Extreme{}, f.err("min")
}

func (f *faultyStore) AvgInRange(context.Context, string, daterange.Range) (*float64, error) {
	return nil, f.err("avg")
}

func (f *faultyStore) Latest(context.Context, string) (*storage.Reading, error) {
	return nil, f.err("latest")
}

func (f *faultyStore) Close() error { return nil }

func TestReadFaultsAreBadRequests(t *testing.T) {
	all := map[string]bool{"count": true, "fetch": true, "max": true, "min": true, "avg": true, "latest": true}
	h := New(&faultyStore{fail: all}, zap.NewNop()).Handler()

	for _, path := range []string{"/status", "/data?stream=x", "/max?stream=x", "/min?stream=x", "/avg?stream=x", "/latest?stream=x"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.JSONEq(t, `{"error":"disk I/O error"}`, rec.Body.String(), path)
	}
}

func TestAppendFaultIsSurfaced(t *testing.T) {
	h := New(&faultyStore{fail: map[string]bool{"append": true}}, zap.NewNop()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/temp?data=1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk I/O error")
}

func TestFaultIsolatedToRequest(t *testing.T) {
	h := New(&faultyStore{fail: map[string]bool{"max": true}}, zap.NewNop()).Handler()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, tc := range []struct {
			path string
			want int
		}{
			{"/max?stream=x", http.StatusBadRequest},
			{"/status", http.StatusOK},
			{"/data?stream=x", http.StatusOK},
		} {
			wg.Add(1)
			go func(path string, want int) {
				defer wg.Done()
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
				assert.Equal(t, want, rec.Code, path)
			}(tc.path, tc.want)
		}
	}
	wg.Wait()
}

func TestDefaultRangeUsesClock(t *testing.T) {
	now := time.Date(2021, 6, 15, 10, 0, 0, 0, time.UTC)
	h := New(&faultyStore{}, zap.NewNop(), WithClock(func() time.Time { return now })).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ptest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["2021-06-14 10:00:00","2021-06-15 10:00:00"]`, strings.TrimSpace(rec.Body.String()))
}

func TestStopBeforeStart(t *testing.T) {
	s := New(&faultyStore{}, zap.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start("127.0.0.1:0") }()
	require.NoError(t, s.Stop(context.Background()))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Start still serving after Stop returned")
	}
}

func TestServeUntilStopped(t *testing.T) {
	s := New(&faultyStore{}, zap.NewNop(), WithTimeouts(time.Second, time.Second))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	code, body := do(t, http.MethodGet, base+"/status")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"COUNT(*)": 7}`, body)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, <-errCh, http.ErrServerClosed)

	_, err = http.Get(base + "/status")
	assert.Error(t, err, "listener is closed once Stop returns")
}
