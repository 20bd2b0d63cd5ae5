package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func init() {
	DefaultList = append(DefaultList, ABORT())
}

func ABORT() *cli.Command {
	return &cli.Command{
		Name:      "abort",
		Usage:     "abort a job",
		ArgsUsage: "<jobID>",
		Flags:     credentialFlags(),
		Action:    runAbort,
	}
}

func runAbort(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("need a job id")
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	info, err := client.Job(c.Args().Get(0)).Abort(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("job %s is now %s\n", info.ID, info.State)
	return nil
}
