package commands

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/sfbulk"
)

func init() {
	DefaultList = append(DefaultList, LOAD())
}

func LOAD() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "load CSV files into an object, one batch per file",
		ArgsUsage: "<file.csv> [file.csv ...]",
		Action:    runLoad,
		Flags: append(credentialFlags(),
			&cli.StringFlag{
				Name:  "operation",
				Usage: "insert, update, upsert, delete or hardDelete",
				Value: "insert",
			},
			&cli.StringFlag{
				Name:     "object",
				Usage:    "object to load into",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "external-id-field",
				Usage: "external id field, required for upsert",
			},
			&cli.StringFlag{
				Name:  "concurrency-mode",
				Usage: "Parallel or Serial",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "wait for the job to finish and report per batch",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "give up waiting after this long, 0 waits forever",
			},
		),
	}
}

func runLoad(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("need at least one CSV file to load")
	}
	operation := sfbulk.Operation(c.String("operation"))
	if operation.IsQuery() {
		return fmt.Errorf("%s is a query operation, use the query command", operation)
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}

	job := client.NewJob(sfbulk.JobSpec{
		Operation:           operation,
		Object:              c.String("object"),
		ExternalIDFieldName: c.String("external-id-field"),
		ConcurrencyMode:     sfbulk.ConcurrencyMode(c.String("concurrency-mode")),
	})

	for _, path := range c.Args().Slice() {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		batch, err := job.AddBatch(c.Context, f)
		_ = f.Close()
		if err != nil {
			return err
		}
		fmt.Printf("batch %s submitted from %s\n", batch.ID, path)
	}
	if !c.Bool("wait") {
		// Fire and forget: seal the job, the outcome is checked later
		// with the status command.
		if _, err := job.Close(c.Context); err != nil {
			return err
		}
		fmt.Printf("job %s closed with %d batches\n", job.ID(), c.Args().Len())
		return nil
	}

	info, waitErr := waitForJob(c.Context, job, c.Duration("timeout"))
	if batches, err := job.Batches(c.Context); err == nil {
		printBatchTable(batches)
	}
	if waitErr != nil {
		return waitErr
	}
	fmt.Printf("job %s done: %d records processed, %d failed\n",
		info.ID, info.NumberRecordsProcessed, info.NumberRecordsFailed)
	return nil
}
