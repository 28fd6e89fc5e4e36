package httpserver

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pewunit/pkg/logx"
)

func get(t *testing.T, url string, header map[string]string) (int, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestServeMetricsAndHealth(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "sample_total", Help: "sample counter"})
	reg.MustRegister(c)
	c.Add(3)

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, reg, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })
	addr := s.Addr()
	require.NotEmpty(t, addr)

	code, body := get(t, "http://"+addr+"/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, "http://"+addr+"/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "sample_total 3")

	code, _ = get(t, "http://"+addr+"/debug/pprof/", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret", Pprof: true}, nil, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })
	base := "http://" + s.Addr()

	code, _ := get(t, base+"/healthz", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, base+"/healthz?token=s3cret", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, base+"/debug/pprof/", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, code)
}

func TestReconfigure(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, logx.Nop())
	ctx := context.Background()

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	require.NotEmpty(t, s.Addr())

	s.Reconfigure(ctx, Config{Enabled: false})
	assert.Empty(t, s.Addr())
}

func TestRefusesInsecureBind(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, logx.Nop())
	s.Start(context.Background())
	assert.Empty(t, s.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:80": true,
		"localhost:1":  true,
		"[::1]:9":      true,
		":9464":        false,
		"0.0.0.0:1":    false,
		"garbage":      false,
	}
	for addr, want := range cases {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}
