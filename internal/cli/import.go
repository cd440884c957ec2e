package cli

import (
	"context"
	"fmt"
	"log"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/infra/xlsx"
	"github.com/spf13/cobra"
)

// NewImportBankCmd imports a global bank spreadsheet into a quiz.
func NewImportBankCmd(configPath *string) *cobra.Command {
	var (
		quizID    string
		authoring string
		owner     string
		file      string
	)
	cmd := &cobra.Command{
		Use:   "import-bank",
		Short: "Import global bank questions from an .xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), cfg, quizID, app.AuthoringState{SessionID: authoring, Owner: owner}, file)
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz set id to import into")
	cmd.Flags().StringVar(&authoring, "authoring", "", "authoring session whose draft receives the questions when --quiz is empty")
	cmd.Flags().StringVar(&owner, "owner", "", "owner recorded on a newly created draft")
	cmd.Flags().StringVar(&file, "file", "", "path to the .xlsx bank")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runImport(ctx context.Context, cfg config.Config, quizID string, state app.AuthoringState, file string) error {
	externals, err := xlsx.ReadBankFile(file)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	services := newServices(cfg, b)

	if quizID == "" {
		if state.SessionID == "" {
			return fmt.Errorf("either --quiz or --authoring is required")
		}
		quizID, err = services.Drafts.EnsureDraft(ctx, state)
		if err != nil {
			return err
		}
	}

	result, err := services.Importer.Import(ctx, quizID, externals)
	if err != nil {
		return err
	}
	log.Printf("imported %d questions into quiz %s (%d already present)", result.Created, quizID, result.Skipped)
	return nil
}
