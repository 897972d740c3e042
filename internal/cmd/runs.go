package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saschahauer/barebox-bringup/internal/bringup"
	"github.com/saschahauer/barebox-bringup/internal/config"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded bring-up runs",
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	store, err := bringup.NewRecordStore(settings.StateDir)
	if err != nil {
		return err
	}
	records, err := store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tROLE\tPLACE\tSTARTED\tREASON")
	for _, r := range records {
		reason := r.ExitReason
		if reason == "" {
			reason = "running"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Role,
			r.Place,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			reason,
		)
	}
	return w.Flush()
}
