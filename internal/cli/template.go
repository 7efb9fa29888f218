package cli

import (
	"github.com/spf13/cobra"

	"resumelens/internal/common"
	"resumelens/internal/templates"
)

var templateOutput string

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print the markdown resume template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLoggerFromContext(cmd.Context())
		if templateOutput == "" {
			_, err := cmd.OutOrStdout().Write(templates.Resume())
			return err
		}

		fp := common.NewFileProcessor(0, logger)
		if err := fp.ValidateOutputFile(templateOutput); err != nil {
			return err
		}
		if err := fp.WriteFile(templateOutput, string(templates.Resume())); err != nil {
			return err
		}
		logger.Info("Template written", "file", templateOutput)
		return nil
	},
}

func init() {
	templateCmd.Flags().StringVarP(&templateOutput, "output", "o", "", "Output file path (default: stdout)")
}
