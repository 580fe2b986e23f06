package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
)

func fastDelays(t *testing.T) {
	t.Helper()
	origSubmit, origPoll := submitDelay, pollDelay
	submitDelay, pollDelay = time.Millisecond, time.Millisecond
	t.Cleanup(func() { submitDelay, pollDelay = origSubmit, origPoll })
}

func testClient(url string) *Client {
	config := &common.JobSpyConfig{
		URL:                   url,
		PollIntervalSeconds:   0,
		JobTimeoutSeconds:     30,
		RequestTimeoutSeconds: 5,
	}
	return NewClient(config, arbor.NewLogger()).(*Client)
}

func TestSubmit_RetriesServerErrors(t *testing.T) {
	fastDelays(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"task_id":"task-42"}`))
	}))
	defer server.Close()

	taskID, err := testClient(server.URL).Submit(context.Background(), common.ScraperConfig{SearchTerm: "golang"})
	require.NoError(t, err)
	assert.Equal(t, "task-42", taskID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmit_ClientErrorIsTerminal(t *testing.T) {
	fastDelays(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Submit(context.Background(), common.ScraperConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmit_EmptyTaskID(t *testing.T) {
	fastDelays(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Submit(context.Background(), common.ScraperConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty task id")
}

func TestSubmit_GivesUpAfterRetryBudget(t *testing.T) {
	fastDelays(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Submit(context.Background(), common.ScraperConfig{})
	require.Error(t, err)
	assert.Equal(t, int32(submitAttempts), calls.Load())
}

func TestWaitForResult_PollsUntilCompleted(t *testing.T) {
	fastDelays(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status/task-42", r.URL.Path)
		if calls.Add(1) < 3 {
			w.Write([]byte(`{"status":"pending"}`))
			return
		}
		w.Write([]byte(`{"status":"completed","count":2,"data":[{"title":"Engineer","company":"Acme","job_url":"https://a"},{"title":"SRE","company":"Beta","job_url":"https://b"}]}`))
	}))
	defer server.Close()

	raws, err := testClient(server.URL).WaitForResult(context.Background(), "task-42", nil)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "Engineer", raws[0].Title)
	assert.Equal(t, "Acme", raws[0].Company)
}

func TestWaitForResult_FailedTaskIsNotAnError(t *testing.T) {
	fastDelays(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"failed","error":"site blocked"}`))
	}))
	defer server.Close()

	raws, err := testClient(server.URL).WaitForResult(context.Background(), "task-42", nil)
	require.NoError(t, err)
	assert.Nil(t, raws)
}

func TestWaitForResult_TimesOut(t *testing.T) {
	fastDelays(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	client.config.JobTimeoutSeconds = 0

	raws, err := client.WaitForResult(context.Background(), "task-42", nil)
	require.NoError(t, err)
	assert.Nil(t, raws)
}

func TestWaitForResult_StopFired(t *testing.T) {
	fastDelays(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	}))
	defer server.Close()

	stop := common.NewStop(context.Background())
	stop.Fire()

	raws, err := testClient(server.URL).WaitForResult(context.Background(), "task-42", stop)
	require.NoError(t, err)
	assert.Nil(t, raws)
}

func TestWaitForResult_PollRetriesTransientErrors(t *testing.T) {
	fastDelays(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"completed","data":[]}`))
	}))
	defer server.Close()

	raws, err := testClient(server.URL).WaitForResult(context.Background(), "task-42", nil)
	require.NoError(t, err)
	assert.Empty(t, raws)
}
