package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"resumelens/internal/ai"
	"resumelens/internal/common"
	"resumelens/internal/config"
	"resumelens/internal/errors"
	"resumelens/internal/extract"
	"resumelens/internal/formatters"
	"resumelens/internal/pipeline"
	"resumelens/internal/sse"
	"resumelens/internal/types"
)

const (
	kindBasic = "basic"
	kindDeep  = "deep"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [resume-file]",
	Short: "Analyze a resume locally",
	Long: `Analyze a resume with the configured AI provider and print the findings.

The resume may be txt, md, pdf, docx, xlsx or html. By default the weak
paragraphs and an overall score are reported; --deep reports timeline issues,
skill claims, missing metrics and, with --job, the fit for a job description.

--stream prints the raw event frames as they arrive instead of a rendered report.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		// Apply default format if not specified
		if analyzeConfig.OutputFormat == "" {
			analyzeConfig.OutputFormat = cfg.App.DefaultFormat
		}
		if analyzeConfig.Stream {
			return nil
		}
		available := common.NewOutputHandler(getLoggerFromContext(cmd.Context())).GetSupportedFormats()
		return common.ValidateOutputFormat(analyzeConfig.OutputFormat, cfg.App.SupportedFormats, available)
	},
	RunE: runAnalyze,
}

// analyzeOptions are the flags of the analyze command
type analyzeOptions struct {
	common.CommandConfig
	Deep    bool
	Role    string
	JobFile string
	Model   string
	Stream  bool
}

var analyzeConfig analyzeOptions

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	analyzeCmd.Flags().BoolVar(&analyzeConfig.Deep, "deep", false, "Report deep insights instead of weaknesses and score")
	analyzeCmd.Flags().StringVar(&analyzeConfig.Role, "role", "", "Target role to analyze the resume against")
	analyzeCmd.Flags().StringVar(&analyzeConfig.JobFile, "job", "", "Job description file to match the resume against")
	analyzeCmd.Flags().StringVar(&analyzeConfig.Model, "model", "", "Model to use (must be in ai.allowedModels)")
	analyzeCmd.Flags().BoolVar(&analyzeConfig.Stream, "stream", false, "Print event frames as they arrive")

	// Add completion for format flag
	_ = analyzeCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		available := common.NewOutputHandler(getLoggerFromContext(cmd.Context())).GetSupportedFormats()
		return common.GetSupportedFormats(cfg.App.SupportedFormats, available), cobra.ShellCompDirectiveNoFileComp
	})
}

// analysisInput is one document to analyze
type analysisInput struct {
	Filename string
	Content  string
	Role     string
	Job      string
}

// analyzer runs the same pipeline as the server, against a local emitter
type analyzer struct {
	factory *ai.Factory
	driver  *pipeline.Driver
	logger  *errors.Logger
}

func newAnalyzer(cfg *config.Config, logger *errors.Logger) (*analyzer, error) {
	prompts, err := cfg.LoadPrompts()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt files: %w", err)
	}
	return &analyzer{
		factory: ai.NewFactory(cfg, ai.NewPrompts(prompts), nil, nil, logger),
		driver:  pipeline.NewDriver(logger, nil),
		logger:  logger,
	}, nil
}

// run streams one analysis into out. Errors before the stream opens are
// returned; later failures end up in the summary and as an error event.
func (a *analyzer) run(ctx context.Context, deep bool, model string, in analysisInput, out pipeline.Emitter) (pipeline.Summary, error) {
	var (
		op     string
		prompt ai.Request
		ex     pipeline.Extractor
		err    error
	)
	if deep {
		op = config.OpDeepInsights
		validator, verr := extract.NewValidator(types.DeepInsights{})
		if verr != nil {
			return pipeline.Summary{}, verr
		}
		prompt, err = a.factory.Prompts().DeepInsights(in.Content, in.Role, in.Job)
		ex = extract.NewDeep(extract.WithValidator(validator))
	} else {
		op = config.OpAnalyze
		paragraphs := extract.SplitParagraphs(in.Content)
		if len(paragraphs) == 0 {
			return pipeline.Summary{}, errors.NewValidationError(errors.ErrCodeInvalidRequest, "document has no text to analyze", nil).
				WithContext("file", in.Filename)
		}
		validator, verr := extract.NewValidator(types.BasicAnalysis{})
		if verr != nil {
			return pipeline.Summary{}, verr
		}
		prompt, err = a.factory.Prompts().Analyze(paragraphs, in.Role, in.Job)
		ex = extract.NewBasic(paragraphs, extract.WithValidator(validator))
	}
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("failed to build prompt: %w", err)
	}

	provider, err := a.factory.Provider(ctx, op, ai.Options{Model: model})
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer func() { _ = provider.Close() }()

	info := provider.ModelInfo()
	a.logger.Info("Starting resume analysis",
		"file", in.Filename,
		"operation", op,
		"provider", info.Provider,
		"model", info.Name,
		"resume_chars", len(in.Content),
		"has_job", in.Job != "")

	summary := a.driver.Stream(ctx, uuid.NewString(), func(ctx context.Context) (ai.TokenStream, error) {
		return provider.Stream(ctx, prompt)
	}, ex, out)
	return summary, nil
}

// report collects one analysis and renders it as a report
func (a *analyzer) report(ctx context.Context, deep bool, model string, in analysisInput) (formatters.Report, error) {
	var collector pipeline.Collector
	if _, err := a.run(ctx, deep, model, in, &collector); err != nil {
		return formatters.Report{}, err
	}
	kind := kindBasic
	if deep {
		kind = kindDeep
	}
	return formatters.NewReport(kind, collector.Events()), nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	a, err := newAnalyzer(cfg, logger)
	if err != nil {
		return err
	}
	opts := analyzeConfig
	opts.MaxFileSize = cfg.App.MaxFileSize

	job, err := readJobDescription(opts.JobFile, opts.MaxFileSize, logger)
	if err != nil {
		return err
	}

	if opts.Stream {
		return streamAnalysis(ctx, a, opts, args[0], job, cmd.OutOrStdout())
	}

	var report formatters.Report
	err = common.RunCommand(ctx, logger, opts.CommandConfig, args,
		func(docs []*types.ParsedFile) (analysisInput, error) {
			if len(docs) != 1 {
				return analysisInput{}, fmt.Errorf("expected 1 file path, got %d", len(docs))
			}
			return analysisInput{Filename: docs[0].Metadata.Filename, Content: docs[0].Content, Role: opts.Role, Job: job}, nil
		},
		func(ctx context.Context, in analysisInput) (formatters.Report, error) {
			r, rerr := a.report(ctx, opts.Deep, opts.Model, in)
			report = r
			return r, rerr
		},
		func(in analysisInput, cfg common.CommandConfig) {
			logger.Debug("Rendering analysis", "file", in.Filename, "output_format", cfg.OutputFormat)
		},
	)
	if err != nil {
		return fmt.Errorf("failed to analyze resume: %w", err)
	}
	if report.Error != "" {
		return errors.NewAIError(errors.ErrCodeStreamFailed, report.Error, nil)
	}
	logger.Info("Resume analysis completed successfully")
	return nil
}

// streamAnalysis writes event frames to the output file or w
func streamAnalysis(ctx context.Context, a *analyzer, opts analyzeOptions, filename, job string, w io.Writer) error {
	fp := common.NewFileProcessor(opts.MaxFileSize, a.logger)
	doc, err := fp.ParseDocument(filename)
	if err != nil {
		return err
	}

	if opts.OutputFile != "" {
		if err := fp.ValidateOutputFile(opts.OutputFile); err != nil {
			return err
		}
		f, err := os.Create(opts.OutputFile)
		if err != nil {
			return errors.NewIOError("FILE_WRITE_FAILED", "cannot create output file", err).
				WithContext("file", opts.OutputFile)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	in := analysisInput{Filename: doc.Metadata.Filename, Content: doc.Content, Role: opts.Role, Job: job}
	summary, err := a.run(ctx, opts.Deep, opts.Model, in, sse.NewPlainWriter(w))
	if err != nil {
		return err
	}
	if summary.Outcome == pipeline.OutcomeError {
		return errors.NewAIError(errors.ErrCodeStreamFailed, pipeline.Message(summary.Err), summary.Err)
	}
	return nil
}

func readJobDescription(filename string, maxSize int64, logger *errors.Logger) (string, error) {
	if filename == "" {
		return "", nil
	}
	doc, err := common.NewFileProcessor(maxSize, logger).ParseDocument(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read job description: %w", err)
	}
	return doc.Content, nil
}
