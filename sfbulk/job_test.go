package sfbulk_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/sfbulk"
	"github.com/rudderlabs/salesforce-bulk-go-sdk/sfbulk/sfbulktest"
)

const (
	testUsername = "ops@example.com"
	testPassword = "hunter2"
)

func newServer() *sfbulktest.Server {
	return sfbulktest.NewBuilder().
		WithCredentials(testUsername, testPassword).
		Build()
}

func newClient(t *testing.T, srv *sfbulktest.Server, opts ...sfbulk.Option) *sfbulk.Client {
	t.Helper()
	c, err := sfbulk.New(config.New(), logger.NOP, stats.NOP, sfbulk.Config{
		LoginURL: srv.URL,
		Username: testUsername,
		Password: testPassword,
	}, opts...)
	require.NoError(t, err)
	return c
}

func TestJobLifecycle(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	job := c.NewJob(sfbulk.JobSpec{Operation: sfbulk.OperationInsert, Object: "Account"})
	require.Empty(t, job.ID())

	info, err := job.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, info.ID)
	require.Equal(t, info.ID, job.ID())
	require.Equal(t, sfbulk.OperationInsert, info.Operation)
	require.Equal(t, "Account", info.Object)
	require.Equal(t, sfbulk.JobOpen, info.State)
	require.Equal(t, sfbulk.ConcurrencyParallel, info.ConcurrencyMode)
	require.Equal(t, "CSV", info.ContentType)

	info, err = job.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, sfbulk.JobOpen, info.State)

	info, err = job.Close(ctx)
	require.NoError(t, err)
	require.Equal(t, sfbulk.JobClosed, info.State)

	seen, ok := srv.JobByID(job.ID())
	require.True(t, ok)
	require.Equal(t, sfbulk.JobClosed, seen.Info.State)
}

func TestJobCreateIdempotent(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	job := c.NewJob(sfbulk.JobSpec{Operation: sfbulk.OperationQuery, Object: "Contact"})
	first, err := job.Create(ctx)
	require.NoError(t, err)
	second, err := job.Create(ctx)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, srv.Jobs(), 1, "a second Create must not create a second job")
	require.Equal(t, 1, srv.LoginCount())
}

func TestJobCreateHeaders(t *testing.T) {
	t.Run("batch retry always disabled", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		c := newClient(t, srv)

		job := c.NewJob(sfbulk.JobSpec{Operation: sfbulk.OperationQuery, Object: "Account"})
		_, err := job.Create(context.Background())
		require.NoError(t, err)

		seen, ok := srv.JobByID(job.ID())
		require.True(t, ok)
		require.Equal(t, "TRUE", seen.CreateHeader.Get("Sforce-Disable-Batch-Retry"))
		require.Empty(t, seen.CreateHeader.Get("Sforce-Enable-PKChunking"))
	})

	t.Run("pk chunking opt-in", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		c := newClient(t, srv)

		job := c.NewJob(sfbulk.JobSpec{Operation: sfbulk.OperationQuery, Object: "Account", PKChunking: true})
		_, err := job.Create(context.Background())
		require.NoError(t, err)

		seen, ok := srv.JobByID(job.ID())
		require.True(t, ok)
		require.Equal(t, "TRUE", seen.CreateHeader.Get("Sforce-Disable-Batch-Retry"))
		require.Equal(t, "TRUE", seen.CreateHeader.Get("Sforce-Enable-PKChunking"))
	})
}

func TestJobAbort(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	job := c.NewJob(sfbulk.JobSpec{Operation: sfbulk.OperationUpdate, Object: "Lead"})
	_, err := job.Create(ctx)
	require.NoError(t, err)

	info, err := job.Abort(ctx)
	require.NoError(t, err)
	require.Equal(t, sfbulk.JobAborted, info.State)
}

func TestJobAttach(t *testing.T) {
	srv := sfbulktest.NewBuilder().
		WithCredentials(testUsername, testPassword).
		WithJob(sfbulktest.Job{
			ID: "750000000000001",
			Info: sfbulk.JobInfo{
				Operation:              sfbulk.OperationQuery,
				Object:                 "Account",
				State:                  sfbulk.JobClosed,
				NumberBatchesTotal:     2,
				NumberBatchesCompleted: 2,
				NumberRecordsProcessed: 1200,
			},
		}).
		Build()
	defer srv.Close()
	c := newClient(t, srv)

	job := c.Job("750000000000001")
	require.Equal(t, "750000000000001", job.ID())

	info, err := job.Info(context.Background())
	require.NoError(t, err)
	require.Equal(t, sfbulk.OperationQuery, info.Operation)
	require.Equal(t, 1200, info.NumberRecordsProcessed)
	require.True(t, info.Succeeded())
	require.False(t, info.Failed())
}

func TestJobSpecValidation(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	c := newClient(t, srv)

	testCases := []struct {
		name  string
		spec  sfbulk.JobSpec
		field string
	}{
		{
			name:  "operation required",
			spec:  sfbulk.JobSpec{Object: "Account"},
			field: "Operation",
		},
		{
			name:  "object required",
			spec:  sfbulk.JobSpec{Operation: sfbulk.OperationInsert},
			field: "Object",
		},
		{
			name:  "upsert needs an external id field",
			spec:  sfbulk.JobSpec{Operation: sfbulk.OperationUpsert, Object: "Account"},
			field: "ExternalIDFieldName",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.NewJob(tc.spec).Create(context.Background())
			var confErr *sfbulk.ConfigError
			require.ErrorAs(t, err, &confErr)
			require.Equal(t, tc.field, confErr.Field)
		})
	}
	require.Equal(t, 0, srv.LoginCount(), "validation must fail before any network call")
}

func TestJobOperationsRequireCreate(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	job := c.NewJob(sfbulk.JobSpec{Operation: sfbulk.OperationQuery, Object: "Account"})

	_, err := job.Info(ctx)
	require.ErrorIs(t, err, sfbulk.ErrJobNotCreated)
	_, err = job.Close(ctx)
	require.ErrorIs(t, err, sfbulk.ErrJobNotCreated)
	_, err = job.Batches(ctx)
	require.ErrorIs(t, err, sfbulk.ErrJobNotCreated)
	_, err = job.Results(ctx)
	require.ErrorIs(t, err, sfbulk.ErrJobNotCreated)
}

func TestLoginFailure(t *testing.T) {
	srv := newServer()
	defer srv.Close()

	c, err := sfbulk.New(config.New(), logger.NOP, stats.NOP, sfbulk.Config{
		LoginURL: srv.URL,
		Username: testUsername,
		Password: "wrong",
	})
	require.NoError(t, err)

	_, err = c.NewJob(sfbulk.JobSpec{Operation: sfbulk.OperationQuery, Object: "Account"}).Create(context.Background())
	var authErr *sfbulk.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "INVALID_LOGIN", authErr.ExceptionCode)

	var confErr *sfbulk.ConfigError
	require.False(t, errors.As(err, &confErr))
}
