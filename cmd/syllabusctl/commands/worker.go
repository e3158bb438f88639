package commands

import (
	"github.com/spf13/cobra"

	"syllabussync/internal/bootstrap"
)

func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume stage jobs from RabbitMQ until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), bootstrap.Options{Worker: true})
			if err != nil {
				return err
			}
			defer app.Close()

			app.Logger.Info("worker running", "queue", app.Config.RabbitMQ.StageQueue)
			<-cmd.Context().Done()
			app.Logger.Info("worker stopping")
			return nil
		},
	}
}
