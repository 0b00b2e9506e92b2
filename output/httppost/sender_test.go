package httppost

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/metric"
)

type recorder struct {
	mu      sync.Mutex
	success []Result
	failure []Result
	sending []bool
	done    chan struct{}
	s       *Sender
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 8)}
}

func (r *recorder) onSuccess(res Result) {
	r.mu.Lock()
	r.success = append(r.success, res)
	r.sending = append(r.sending, r.s.IsSending())
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recorder) onFailure(res Result) {
	r.mu.Lock()
	r.failure = append(r.failure, res)
	r.sending = append(r.sending, r.s.IsSending())
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback did not fire")
	}
}

func newTestSender(t *testing.T, cfg Config, opts ...Option) (*Sender, *recorder) {
	t.Helper()
	rec := newRecorder()
	s, err := New(cfg, append([]Option{WithCallbacks(rec.onSuccess, rec.onFailure)}, opts...)...)
	require.NoError(t, err)
	rec.s = s
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestSender_Success(t *testing.T) {
	type captured struct {
		method, path string
		header       http.Header
		body         string
	}
	ch := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- captured{method: r.Method, path: r.URL.Path, header: r.Header.Clone(), body: string(body)}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"Data stored successfully"}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL + "/api/v1/data")
	cfg.APIToken = "secret"
	s, rec := newTestSender(t, cfg)

	id, err := s.Send([]byte(`{"measurements":[]}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	rec.wait(t)

	require.Len(t, rec.success, 1)
	assert.Empty(t, rec.failure)
	res := rec.success[0]
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, `{"message":"Data stored successfully"}`, res.Body)
	assert.Equal(t, id, res.RequestID)
	assert.False(t, rec.sending[0], "state is Idle before the callback runs")

	got := <-ch
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/v1/data", got.path)
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, "secret", got.header.Get("X-API-Token"))
	assert.Equal(t, id, got.header.Get("X-Request-ID"))
	assert.Empty(t, got.header.Get("Authorization"))
	assert.Equal(t, `{"measurements":[]}`, got.body)

	assert.Equal(t, Stats{Attempts: 1, Successes: 1}, s.Stats())
	assert.Equal(t, Idle, s.State())
}

func TestSender_RemoteRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	defer srv.Close()

	s, rec := newTestSender(t, testConfig(srv.URL))
	_, err := s.Send([]byte(`{}`))
	require.NoError(t, err)
	rec.wait(t)

	require.Len(t, rec.failure, 1)
	res := rec.failure[0]
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "busy", res.Body)
	assert.ErrorIs(t, res.Err, errors.ErrRemoteRejected)
	assert.False(t, res.Success())
	assert.Equal(t, int64(1), s.Stats().Failures)
}

func TestSender_IOError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	s, rec := newTestSender(t, testConfig(url))
	_, err := s.Send([]byte(`{}`))
	require.NoError(t, err)
	rec.wait(t)

	require.Len(t, rec.failure, 1)
	assert.Equal(t, StatusNoResponse, rec.failure[0].StatusCode)
	assert.Empty(t, rec.failure[0].Body)
	assert.True(t, errors.IsTransient(rec.failure[0].Err))
}

func TestSender_DeadlineForcesFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	s, rec := newTestSender(t, cfg)

	_, err := s.Send([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, s.IsSending())
	rec.wait(t)

	require.Len(t, rec.failure, 1)
	assert.Equal(t, StatusNoResponse, rec.failure[0].StatusCode)
	assert.ErrorIs(t, rec.failure[0].Err, context.DeadlineExceeded)
	assert.False(t, s.IsSending())
}

func TestSender_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, rec := newTestSender(t, testConfig(srv.URL))

	_, err := s.Send([]byte(`{"n":1}`))
	require.NoError(t, err)
	assert.True(t, s.IsSending())

	_, err = s.Send([]byte(`{"n":2}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSenderBusy)

	close(release)
	rec.wait(t)

	assert.Len(t, rec.success, 1)
	assert.Empty(t, rec.failure, "busy open failure fires no callback")
	assert.Equal(t, Stats{Attempts: 1, Successes: 1, OpenFailures: 1}, s.Stats())
}

func TestSender_NoEndpoint(t *testing.T) {
	s, rec := newTestSender(t, testConfig(""))

	_, err := s.Send([]byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoEndpoint)
	assert.False(t, s.IsSending())
	assert.Empty(t, rec.success)
	assert.Empty(t, rec.failure)
}

func TestSender_BasicAuthAndGzip(t *testing.T) {
	type seen struct {
		user, pass, encoding string
		ok                   bool
		body                 string
	}
	ch := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v seen
		v.user, v.pass, v.ok = r.BasicAuth()
		v.encoding = r.Header.Get("Content-Encoding")
		zr, err := gzip.NewReader(r.Body)
		if err == nil {
			data, _ := io.ReadAll(zr)
			v.body = string(data)
		}
		ch <- v
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Username = "logger"
	cfg.Password = "pw"
	cfg.Gzip = true
	s, rec := newTestSender(t, cfg)

	_, err := s.Send([]byte(`{"measurements":[{"timestamp":1,"value":2}]}`))
	require.NoError(t, err)
	rec.wait(t)

	v := <-ch
	assert.True(t, v.ok)
	assert.Equal(t, "logger", v.user)
	assert.Equal(t, "pw", v.pass)
	assert.Equal(t, "gzip", v.encoding)
	assert.Equal(t, `{"measurements":[{"timestamp":1,"value":2}]}`, v.body)
	require.Len(t, rec.success, 1)
	assert.Equal(t, http.StatusNoContent, rec.success[0].StatusCode)
}

func TestSender_BasicAuthNeedsBothHalves(t *testing.T) {
	ch := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch <- r.Header.Get("Authorization")
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Username = "logger"
	s, rec := newTestSender(t, cfg)

	_, err := s.Send([]byte(`{}`))
	require.NoError(t, err)
	rec.wait(t)
	assert.Empty(t, <-ch)
}

func TestSender_CloseCancelsInFlight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = time.Minute
	s, rec := newTestSender(t, cfg)

	_, err := s.Send([]byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.Len(t, rec.failure, 1)
	assert.ErrorIs(t, rec.failure[0].Err, context.Canceled)

	_, err = s.Send([]byte(`{}`))
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
}

func TestSender_SendRacingClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	for i := 0; i < 50; i++ {
		s, err := New(testConfig(srv.URL), WithLogger(quiet))
		require.NoError(t, err)

		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			for {
				if _, err := s.Send([]byte(`{}`)); errors.Is(err, errors.ErrShuttingDown) {
					return
				}
			}
		}()

		time.Sleep(time.Millisecond)
		require.NoError(t, s.Close())
		<-stopped

		st := s.Stats()
		assert.Equal(t, st.Attempts, st.Successes+st.Failures, "every opened request completed before Close returned")
		assert.Equal(t, Idle, s.State())
	}
}

func TestSender_Metrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := metric.NewMetricsRegistry()
	s, rec := newTestSender(t, testConfig(srv.URL), WithMetrics(registry))

	_, err := s.Send([]byte(`{}`))
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.requests.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.inFlight))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults without url", func(*Config) {}, false},
		{"https url", func(c *Config) { c.URL = "https://collector.example.com/api/v1/data" }, false},
		{"bad scheme", func(c *Config) { c.URL = "ftp://collector" }, true},
		{"missing host", func(c *Config) { c.URL = "http://" }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"huge timeout", func(c *Config) { c.Timeout = time.Hour }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_MissingCAFile(t *testing.T) {
	cfg := testConfig("https://localhost:1")
	cfg.TLS.CAFiles = []string{"/nonexistent/ca.pem"}
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestSender_TLSCollector(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	untrusted, rec := newTestSender(t, testConfig(srv.URL))
	_, err := untrusted.Send([]byte(`{"measurements":[]}`))
	require.NoError(t, err)
	rec.wait(t)
	require.Len(t, rec.failure, 1, "self-signed certificate is not trusted by default")
	assert.Equal(t, StatusNoResponse, rec.failure[0].StatusCode)

	cfg := testConfig(srv.URL)
	cfg.TLS.InsecureSkipVerify = true
	trusted, rec := newTestSender(t, cfg)
	_, err = trusted.Send([]byte(`{"measurements":[]}`))
	require.NoError(t, err)
	rec.wait(t)
	require.Len(t, rec.success, 1)
}
