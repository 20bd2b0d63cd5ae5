package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/jsonrs"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/sfbulk"
	"github.com/rudderlabs/salesforce-bulk-go-sdk/sfbulk/sfbulktest"
)

const (
	waiterUsername = "ops@example.com"
	waiterPassword = "hunter2"
)

var statePattern = regexp.MustCompile(`<state>([^<]+)</state>`)

// stateChangeRecorder captures every job state the client posts, so tests
// can assert which of close and abort actually ran.
type stateChangeRecorder struct {
	next sfbulk.HttpClient

	mu     sync.Mutex
	states []string
}

func (r *stateChangeRecorder) Do(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost && strings.Contains(req.URL.Path, "/job/") && req.Body != nil {
		payload, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(payload))
		if m := statePattern.FindSubmatch(payload); m != nil {
			r.mu.Lock()
			r.states = append(r.states, string(m[1]))
			r.mu.Unlock()
		}
	}
	return r.next.Do(req)
}

func (r *stateChangeRecorder) stateChanges() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func newWaiterFixture(t *testing.T, seed sfbulktest.Job) (*sfbulk.Job, *sfbulktest.Server, *stateChangeRecorder) {
	t.Helper()
	srv := sfbulktest.NewBuilder().
		WithCredentials(waiterUsername, waiterPassword).
		WithJob(seed).
		Build()
	t.Cleanup(srv.Close)

	rec := &stateChangeRecorder{next: http.DefaultClient}
	client, err := sfbulk.New(config.New(), logger.NOP, stats.NOP, sfbulk.Config{
		LoginURL: srv.URL,
		Username: waiterUsername,
		Password: waiterPassword,
	}, sfbulk.WithHTTPClient(rec))
	require.NoError(t, err)
	return client.Job(seed.ID), srv, rec
}

func TestWaitForJobClosesOnSuccess(t *testing.T) {
	job, srv, rec := newWaiterFixture(t, sfbulktest.Job{
		ID: "750000000000101",
		Info: sfbulk.JobInfo{
			State:                  sfbulk.JobOpen,
			NumberBatchesTotal:     2,
			NumberBatchesCompleted: 2,
			NumberRecordsProcessed: 10,
		},
	})

	info, err := waitForJob(context.Background(), job, time.Minute)
	require.NoError(t, err)
	require.Equal(t, sfbulk.JobClosed, info.State)
	require.Equal(t, 10, info.NumberRecordsProcessed)

	stored, ok := srv.JobByID("750000000000101")
	require.True(t, ok)
	require.Equal(t, sfbulk.JobClosed, stored.Info.State)
	require.Equal(t, []string{"Closed"}, rec.stateChanges())
}

func TestWaitForJobAbortsOnFailure(t *testing.T) {
	job, srv, rec := newWaiterFixture(t, sfbulktest.Job{
		ID: "750000000000102",
		Info: sfbulk.JobInfo{
			State:                  sfbulk.JobOpen,
			NumberBatchesTotal:     5,
			NumberBatchesCompleted: 4,
			NumberBatchesFailed:    1,
			NumberRecordsProcessed: 83,
			NumberRecordsFailed:    17,
		},
	})

	_, err := waitForJob(context.Background(), job, time.Minute)
	var jobErr *sfbulk.JobFailedError
	require.ErrorAs(t, err, &jobErr)
	require.Equal(t, "750000000000102", jobErr.Info.ID)
	require.Equal(t, 1, jobErr.Info.NumberBatchesFailed)
	require.Equal(t, 17, jobErr.Info.NumberRecordsFailed)

	stored, ok := srv.JobByID("750000000000102")
	require.True(t, ok)
	require.Equal(t, sfbulk.JobAborted, stored.Info.State)
	require.Equal(t, []string{"Aborted"}, rec.stateChanges())
}

func TestWaitForJobTimeout(t *testing.T) {
	job, _, rec := newWaiterFixture(t, sfbulktest.Job{
		ID: "750000000000103",
		Info: sfbulk.JobInfo{
			State:              sfbulk.JobOpen,
			NumberBatchesTotal: 1,
		},
	})

	_, err := waitForJob(context.Background(), job, 10*time.Millisecond)
	require.ErrorContains(t, err, "timed out waiting for the job")
	require.Empty(t, rec.stateChanges())
}

func TestWaitForBatchesClosesOnSuccess(t *testing.T) {
	// A PK chunked job keeps the original batch parked in NotProcessed, the
	// completed count never reaches the total. Only the chunk batch states
	// decide the outcome.
	job, srv, rec := newWaiterFixture(t, sfbulktest.Job{
		ID: "750000000000104",
		Info: sfbulk.JobInfo{
			State:                  sfbulk.JobOpen,
			NumberBatchesTotal:     3,
			NumberBatchesCompleted: 2,
			NumberRecordsProcessed: 20,
		},
		Batches: []sfbulktest.Batch{
			{ID: "b-placeholder", Info: sfbulk.BatchInfo{State: sfbulk.BatchNotProcessed}},
			{ID: "b-1", Info: sfbulk.BatchInfo{State: sfbulk.BatchCompleted}},
			{ID: "b-2", Info: sfbulk.BatchInfo{State: sfbulk.BatchCompleted}},
		},
	})

	info, err := waitForBatches(context.Background(), job, time.Minute)
	require.NoError(t, err)
	require.Equal(t, sfbulk.JobClosed, info.State)
	require.Equal(t, 20, info.NumberRecordsProcessed)

	stored, ok := srv.JobByID("750000000000104")
	require.True(t, ok)
	require.Equal(t, sfbulk.JobClosed, stored.Info.State)
	require.Equal(t, []string{"Closed"}, rec.stateChanges())
}

func TestWaitForBatchesAbortsOnFailedBatch(t *testing.T) {
	// The job counters do not show the failure, the batch state does.
	job, srv, rec := newWaiterFixture(t, sfbulktest.Job{
		ID: "750000000000105",
		Info: sfbulk.JobInfo{
			State:                  sfbulk.JobOpen,
			NumberBatchesTotal:     3,
			NumberBatchesCompleted: 1,
			NumberRecordsProcessed: 10,
		},
		Batches: []sfbulktest.Batch{
			{ID: "b-placeholder", Info: sfbulk.BatchInfo{State: sfbulk.BatchNotProcessed}},
			{ID: "b-1", Info: sfbulk.BatchInfo{State: sfbulk.BatchCompleted}},
			{ID: "b-2", Info: sfbulk.BatchInfo{
				State:        sfbulk.BatchFailed,
				StateMessage: "InvalidBatch : Field name not found : Departement",
			}},
		},
	})

	_, err := waitForBatches(context.Background(), job, time.Minute)
	var jobErr *sfbulk.JobFailedError
	require.ErrorAs(t, err, &jobErr)
	require.Equal(t, "750000000000105", jobErr.Info.ID)

	stored, ok := srv.JobByID("750000000000105")
	require.True(t, ok)
	require.Equal(t, sfbulk.JobAborted, stored.Info.State)
	require.Equal(t, []string{"Aborted"}, rec.stateChanges())
}

func TestObjectFromSOQL(t *testing.T) {
	cases := []struct {
		soql string
		want string
	}{
		{"SELECT Id FROM Account", "Account"},
		{"select id, name from Contact where Name != null", "Contact"},
		{"SELECT Id FROM", ""},
		{"SELECT Id", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, objectFromSOQL(tc.soql), tc.soql)
	}
}

func TestLoadRejectsQueryOperations(t *testing.T) {
	for _, operation := range []string{"query", "queryAll"} {
		app := &cli.App{Commands: []*cli.Command{LOAD()}}
		err := app.RunContext(context.Background(),
			[]string{"sfbulk", "load", "--object", "Account", "--operation", operation, "accounts.csv"})
		require.ErrorContains(t, err, "use the query command", operation)
	}
}

func TestStatusJSONOutput(t *testing.T) {
	info := &sfbulk.JobInfo{
		ID:                     "750000000000201",
		State:                  sfbulk.JobClosed,
		Operation:              sfbulk.OperationQuery,
		Object:                 "Account",
		NumberBatchesTotal:     2,
		NumberBatchesCompleted: 2,
		NumberRecordsProcessed: 12,
	}
	batches := []sfbulk.BatchInfo{
		{ID: "b-1", JobID: info.ID, State: sfbulk.BatchCompleted, NumberRecordsProcessed: 12},
	}

	var buf bytes.Buffer
	require.NoError(t, writeStatusJSON(&buf, info, batches))

	var doc statusDocument
	require.NoError(t, jsonrs.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, *info, doc.Job)
	require.Equal(t, batches, doc.Batches)
}
