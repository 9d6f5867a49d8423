package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func healthServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestProbe(t *testing.T) {
	ok := healthServer(http.StatusOK, `{"status":"ok","variants":{"strength":{"loaded":true}}}`)
	defer ok.Close()
	assert.NoError(t, probe(ok.URL, time.Second, true))

	degraded := healthServer(http.StatusOK, `{"status":"degraded","variants":{"permeability":{"loaded":false,"error":"missing scaler"}}}`)
	defer degraded.Close()
	assert.NoError(t, probe(degraded.URL, time.Second, false))
	err := probe(degraded.URL, time.Second, true)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "missing scaler")
	}

	down := healthServer(http.StatusServiceUnavailable, `{"status":"unavailable"}`)
	defer down.Close()
	assert.Error(t, probe(down.URL, time.Second, false))

	garbage := healthServer(http.StatusOK, `OK`)
	defer garbage.Close()
	assert.Error(t, probe(garbage.URL, time.Second, false))
}

func TestProbeUnreachable(t *testing.T) {
	srv := healthServer(http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	assert.Error(t, probe(url, time.Second, false))
}
