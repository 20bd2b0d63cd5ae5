package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/sfbulk"
)

func init() {
	DefaultList = append(DefaultList, QUERY())
}

func QUERY() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "run a bulk SOQL query and stream the merged CSV result",
		ArgsUsage: "<soql>",
		Action:    runQuery,
		Flags: append(credentialFlags(),
			&cli.StringFlag{
				Name:  "object",
				Usage: "object the query runs against, inferred from the FROM clause when omitted",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "write the CSV to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "query-all",
				Usage: "include deleted and archived records",
			},
			&cli.BoolFlag{
				Name:  "pk-chunking",
				Usage: "let the service split the query into ranged batches",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "give up waiting after this long, 0 waits forever",
			},
		),
	}
}

func runQuery(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("need a SOQL query to run")
	}
	soql := c.Args().Get(0)
	object := c.String("object")
	if object == "" {
		object = objectFromSOQL(soql)
	}
	if object == "" {
		return fmt.Errorf("cannot infer the object from the query, pass --object")
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}

	operation := sfbulk.OperationQuery
	if c.Bool("query-all") {
		operation = sfbulk.OperationQueryAll
	}
	job := client.NewJob(sfbulk.JobSpec{
		Operation:  operation,
		Object:     object,
		PKChunking: c.Bool("pk-chunking"),
	})

	if _, err := job.AddBatch(c.Context, strings.NewReader(soql)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "job %s submitted, waiting\n", job.ID())

	wait := waitForJob
	if c.Bool("pk-chunking") {
		wait = waitForBatches
	}
	info, err := wait(c.Context, job, c.Duration("timeout"))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "job %s done: %d records\n", info.ID, info.NumberRecordsProcessed)

	out := io.Writer(os.Stdout)
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	results, err := job.Results(c.Context)
	if err != nil {
		return err
	}
	defer func() { _ = results.Close() }()
	_, err = io.Copy(out, results)
	return err
}

func objectFromSOQL(soql string) string {
	fields := strings.Fields(soql)
	for i, f := range fields {
		if strings.EqualFold(f, "from") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
