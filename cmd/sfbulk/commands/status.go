package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/alexeyco/simpletable"
	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-go-kit/jsonrs"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/sfbulk"
)

func init() {
	DefaultList = append(DefaultList, STATUS())
}

func STATUS() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "show a job's counters and batches",
		ArgsUsage: "<jobID>",
		Action:    runStatus,
		Flags: append(credentialFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the job and its batches as JSON",
			},
		),
	}
}

func runStatus(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("need a job id")
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}

	job := client.Job(c.Args().Get(0))
	info, err := job.Info(c.Context)
	if err != nil {
		return err
	}
	batches, err := job.Batches(c.Context)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return writeStatusJSON(os.Stdout, info, batches)
	}

	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Field"},
			{Align: simpletable.AlignCenter, Text: "Value"},
		},
	}
	rows := [][2]string{
		{"ID", info.ID},
		{"State", string(info.State)},
		{"Operation", string(info.Operation)},
		{"Object", info.Object},
		{"Batches", fmt.Sprintf("%d queued, %d in progress, %d completed, %d failed, %d total",
			info.NumberBatchesQueued, info.NumberBatchesInProgress, info.NumberBatchesCompleted,
			info.NumberBatchesFailed, info.NumberBatchesTotal)},
		{"Records", fmt.Sprintf("%d processed, %d failed", info.NumberRecordsProcessed, info.NumberRecordsFailed)},
	}
	for _, row := range rows {
		table.Body.Cells = append(table.Body.Cells, []*simpletable.Cell{
			{Align: simpletable.AlignLeft, Text: row[0]},
			{Align: simpletable.AlignLeft, Text: row[1]},
		})
	}
	table.SetStyle(simpletable.StyleCompactLite)
	fmt.Println(table.String())

	switch {
	case info.Failed():
		fmt.Println("job has failures")
	case info.Succeeded() && info.NumberBatchesTotal > 0:
		fmt.Println("job succeeded")
	default:
		fmt.Println("job still running")
	}

	if len(batches) > 0 {
		printBatchTable(batches)
	}
	return nil
}

type statusDocument struct {
	Job     sfbulk.JobInfo
	Batches []sfbulk.BatchInfo
}

func writeStatusJSON(w io.Writer, info *sfbulk.JobInfo, batches []sfbulk.BatchInfo) error {
	return jsonrs.NewEncoder(w).Encode(statusDocument{Job: *info, Batches: batches})
}
