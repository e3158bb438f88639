package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"syllabussync/internal/app"
	"syllabussync/internal/bootstrap"
)

func NewAskCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "ask <version-id> <question...>",
		Short: "Answer a question against one document version",
		Args:  cobra.MinimumNArgs(2),
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

			answer, err := a.Services.QA.Ask(cmd.Context(), app.AskInput{
				VersionID: versionID,
				Question:  strings.Join(args[1:], " "),
				K:         k,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), answer)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of passages (default: retrieval.default_k)")
	return cmd
}

func parseVersionID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid version id %q", raw)
	}
	return uint(id), nil
}
