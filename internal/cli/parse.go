package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"resumelens/internal/common"
	"resumelens/internal/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Print the text extracted from a document",
	Long: `Extract the text of a txt, md, pdf, docx, xlsx or html document the same
way the server does for uploads. Use --format json to include the detected
type and metadata.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		available := common.NewOutputHandler(getLoggerFromContext(cmd.Context())).GetSupportedFormats()
		return common.ValidateOutputFormat(parseConfig.OutputFormat, nil, available)
	},
	RunE: runParse,
}

var parseConfig common.CommandConfig

func init() {
	parseCmd.Flags().StringVarP(&parseConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	parseCmd.Flags().StringVar(&parseConfig.OutputFormat, "format", "text", "Output format: text or json")
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	opts := parseConfig
	opts.MaxFileSize = cfg.App.MaxFileSize

	return common.RunCommand(cmd.Context(), logger, opts, args,
		func(docs []*types.ParsedFile) (*types.ParsedFile, error) {
			if len(docs) != 1 {
				return nil, fmt.Errorf("expected 1 file path, got %d", len(docs))
			}
			return docs[0], nil
		},
		func(_ context.Context, doc *types.ParsedFile) (*types.ParsedFile, error) {
			return doc, nil
		},
		func(doc *types.ParsedFile, cfg common.CommandConfig) {
			logger.Info("Document parsed",
				"file", doc.Metadata.Filename,
				"type", doc.Type,
				"chars", len(doc.Content),
				"output_format", cfg.OutputFormat)
		},
	)
}
