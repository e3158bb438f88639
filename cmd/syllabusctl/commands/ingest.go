package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"syllabussync/internal/app"
	"syllabussync/internal/bootstrap"
	"syllabussync/internal/pkg/locator"
)

func NewIngestCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Run the whole pipeline over a local PDF in-process",
		Long: `Registers the file as a new document for the default user and runs
extract, chunk, embed and events without a broker.

Examples:
  syllabusctl ingest ./cs101.pdf
  syllabusctl ingest ./cs101.pdf --title "CS101 Fall"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			if _, err := os.Stat(path); err != nil {
				return err
			}
			if strings.TrimSpace(title) == "" {
				title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			a, err := openApp(cmd.Context(), bootstrap.Options{Local: true})
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.Services.Auth.DefaultUser(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.Services.Upload.Notify(cmd.Context(), app.NotifyInput{
				UserID:     user.ID,
				Title:      title,
				StorageURI: locator.File(path),
			})
			if err != nil {
				return err
			}
			if err := a.LocalQueue.Wait(); err != nil {
				return fmt.Errorf("pipeline failed: %w", err)
			}

			status, err := a.Services.Ingest.Status(cmd.Context(), res.DocumentVersionID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"document_id":         res.DocumentID,
				"document_version_id": res.DocumentVersionID,
				"state":               status.State,
				"counts":              status.Counts,
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Document title (default: file name)")
	return cmd
}
