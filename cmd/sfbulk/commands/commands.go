package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alexeyco/simpletable"
	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/sfbulk"
)

var DefaultList []*cli.Command

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "username",
			Usage:   "Salesforce username",
			EnvVars: []string{"SFBULK_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "Salesforce password",
			EnvVars: []string{"SFBULK_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "security-token",
			Usage:   "security token, appended to the password at login",
			EnvVars: []string{"SFBULK_SECURITY_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "login-url",
			Usage:   "login host",
			Value:   sfbulk.DefaultLoginURL,
			EnvVars: []string{"SFBULK_LOGIN_URL"},
		},
		&cli.StringFlag{
			Name:    "api-version",
			Usage:   "bulk API version",
			EnvVars: []string{"SFBULK_API_VERSION"},
		},
	}
}

func newClient(c *cli.Context) (*sfbulk.Client, error) {
	return sfbulk.New(config.Default, logger.NOP, stats.NOP, sfbulk.Config{
		LoginURL:      c.String("login-url"),
		Username:      c.String("username"),
		Password:      c.String("password"),
		SecurityToken: c.String("security-token"),
		APIVersion:    c.String("api-version"),
	})
}

func newPollBackoff(timeout time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = timeout
	return b
}

func sleepBackoff(ctx context.Context, b *backoff.ExponentialBackOff) error {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return errors.New("timed out waiting for the job to finish")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
	}
	return nil
}

// waitForJob polls the job counters until every batch completed or
// something failed, then drives the job to its terminal state: Close on
// success, Abort on failure with the final snapshot inside
// JobFailedError. Close and abort are mutually exclusive, a failed job
// is never closed.
func waitForJob(ctx context.Context, job *sfbulk.Job, timeout time.Duration) (*sfbulk.JobInfo, error) {
	b := newPollBackoff(timeout)
	for {
		info, err := job.Info(ctx)
		if err != nil {
			return nil, err
		}
		if info.Failed() {
			return nil, abortFailed(ctx, job, info)
		}
		if info.NumberBatchesTotal > 0 && info.Succeeded() {
			return job.Close(ctx)
		}
		if err := sleepBackoff(ctx, b); err != nil {
			return nil, err
		}
	}
}

// waitForBatches polls batch states instead of job counters. A PK chunked
// job parks the submitted batch in NotProcessed, which keeps the job's
// completed count forever short of its total, so the counters never
// settle and only the chunk batches tell the truth. Terminal handling
// matches waitForJob: close on success, abort on failure.
func waitForBatches(ctx context.Context, job *sfbulk.Job, timeout time.Duration) (*sfbulk.JobInfo, error) {
	b := newPollBackoff(timeout)
	for {
		batches, err := job.Batches(ctx)
		if err != nil {
			return nil, err
		}
		done := len(batches) > 0 && lo.EveryBy(batches, func(batch sfbulk.BatchInfo) bool {
			return batch.State == sfbulk.BatchCompleted || batch.State == sfbulk.BatchFailed
		})
		if done {
			info, err := job.Info(ctx)
			if err != nil {
				return nil, err
			}
			failed := info.Failed() || lo.SomeBy(batches, func(batch sfbulk.BatchInfo) bool {
				return batch.State == sfbulk.BatchFailed
			})
			if failed {
				return nil, abortFailed(ctx, job, info)
			}
			return job.Close(ctx)
		}
		if err := sleepBackoff(ctx, b); err != nil {
			return nil, err
		}
	}
}

func abortFailed(ctx context.Context, job *sfbulk.Job, info *sfbulk.JobInfo) error {
	if _, err := job.Abort(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "WARN: aborting failed job: %v\n", err)
	}
	return &sfbulk.JobFailedError{Info: *info}
}

func printBatchTable(batches []sfbulk.BatchInfo) {
	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Batch"},
			{Align: simpletable.AlignCenter, Text: "State"},
			{Align: simpletable.AlignCenter, Text: "Processed"},
			{Align: simpletable.AlignCenter, Text: "Failed"},
			{Align: simpletable.AlignCenter, Text: "Message"},
		},
	}

	for _, batch := range batches {
		r := []*simpletable.Cell{
			{Align: simpletable.AlignLeft, Text: batch.ID},
			{Align: simpletable.AlignLeft, Text: string(batch.State)},
			{Align: simpletable.AlignRight, Text: fmt.Sprintf("%d", batch.NumberRecordsProcessed)},
			{Align: simpletable.AlignRight, Text: fmt.Sprintf("%d", batch.NumberRecordsFailed)},
			{Align: simpletable.AlignLeft, Text: batch.StateMessage},
		}

		table.Body.Cells = append(table.Body.Cells, r)
	}

	table.SetStyle(simpletable.StyleCompactLite)
	fmt.Println(table.String())
}
