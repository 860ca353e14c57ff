package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveClassifierCall(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func TestClientPredictSuccess(t *testing.T) {
	var received request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"labels":["HOSTEL"],"overallConfidence":0.9}`))
	}))
	defer server.Close()

	observer := &recordingObserver{}
	client := NewClient(Config{Endpoint: server.URL}, WithObserver(observer))
	res := client.Predict(context.Background(), Item{Title: "Fan broken", Description: "Room 12", Images: []interface{}{"http://x/1.jpg"}})

	success, ok := res.(Success)
	require.True(t, ok, "expected success, got %#v", res)
	assert.Equal(t, "HOSTEL", success.Labels[0].Name)
	require.Len(t, received.Items, 1)
	assert.Equal(t, "Fan broken", received.Items[0].Title)
	assert.Equal(t, []string{OutcomeSuccess}, observer.outcomes)
}

func TestClientPredictNon2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	res := NewClient(Config{Endpoint: server.URL}).Predict(context.Background(), Item{})
	failure, ok := res.(Failure)
	require.True(t, ok)
	assert.Contains(t, failure.Error(), "503")
}

func TestClientPredictTimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{Endpoint: server.URL, ReadTimeout: 50 * time.Millisecond})
	start := time.Now()
	res := client.Predict(context.Background(), Item{Title: "slow"})

	_, ok := res.(Failure)
	require.True(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClientPredictUnparseableKeepsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops`))
	}))
	defer server.Close()

	observer := &recordingObserver{}
	res := NewClient(Config{Endpoint: server.URL}, WithObserver(observer)).Predict(context.Background(), Item{})
	failure, ok := res.(Failure)
	require.True(t, ok)
	assert.Equal(t, "<html>oops", failure.RawBody())
	assert.Equal(t, []string{OutcomeUnparseable}, observer.outcomes)
}

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	observer := &recordingObserver{}
	client := NewClient(Config{Endpoint: server.URL, BreakerFailures: 2, BreakerOpenFor: time.Minute}, WithObserver(observer))
	for i := 0; i < 4; i++ {
		_, ok := client.Predict(context.Background(), Item{}).(Failure)
		require.True(t, ok)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{OutcomeFailure, OutcomeFailure, OutcomeBreakerOpen, OutcomeBreakerOpen}, observer.outcomes)
}

func TestClientWithoutEndpointFails(t *testing.T) {
	res := NewClient(Config{}).Predict(context.Background(), Item{})
	failure, ok := res.(Failure)
	require.True(t, ok)
	assert.Equal(t, "prediction endpoint not configured", failure.Reason)
}
