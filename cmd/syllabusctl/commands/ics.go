package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"syllabussync/internal/bootstrap"
)

func NewICSCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "ics <version-id>",
		Short: "Export a version's events as an iCalendar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versionID, err := parseVersionID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), bootstrap.Options{Local: true})
			if err != nil {
				return err
			}
			defer a.Close()

			body, err := a.Services.Calendar.ExportICS(cmd.Context(), versionID)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			_, err = io.WriteString(w, body)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
