package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"syllabussync/internal/bootstrap"
	"syllabussync/internal/model"
)

func NewStageCmd() *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "stage <version-id> <extract|chunk|embed|events>",
		Short: "Run one stage for a document version again",
		Long: `Runs a single stage in-process, followed by whatever stages it
schedules. With --enqueue the job is published to RabbitMQ instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			versionID, err := parseVersionID(args[0])
			if err != nil {
				return err
			}
			stage := args[1]

			a, err := openApp(cmd.Context(), bootstrap.Options{Local: !enqueue})
			if err != nil {
				return err
			}
			defer a.Close()

			if enqueue {
				if err := a.Services.Ingest.Enqueue(cmd.Context(), versionID, stage); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s for version %d\n", stage, versionID)
				return nil
			}

			res, err := a.Services.Ingest.RunStage(cmd.Context(), model.StageJob{VersionID: versionID, Stage: stage})
			if err != nil {
				return err
			}
			if err := a.LocalQueue.Wait(); err != nil {
				return fmt.Errorf("follow-up stages failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Publish the job to RabbitMQ instead of running it")
	return cmd
}
