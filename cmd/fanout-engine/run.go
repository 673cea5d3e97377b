package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/fanout-engine/internal/costs"
	"github.com/pdiddy/fanout-engine/internal/genai"
	"github.com/pdiddy/fanout-engine/internal/pipeline"
	"github.com/pdiddy/fanout-engine/internal/plan"
	"github.com/pdiddy/fanout-engine/internal/retrieval"
	"github.com/pdiddy/fanout-engine/internal/secrets"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "fanout-engine/0.1"
	defaultModel     = "gemini-1.5-flash-latest"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the full fan-out pipeline for one query",
	Long: `Run expands the query into sub-queries, routes each one to source types and
content modalities, profiles the currently winning content for every routed
sub-query, and clusters the profiled set into content pillars.

Artifacts are written to the output directory: the run JSON, the Markdown
content plan, and the cost summary YAML. Individual sub-query failures do not
abort the run; they are listed in the plan's gaps section.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("query", "", "seed query to fan out (required)")
	runCmd.Flags().String("location", "", "optional location bias (e.g. \"Toronto\")")
	runCmd.Flags().String("output-dir", "outputs", "directory for run artifacts")
	runCmd.Flags().Int("workers", 4, "concurrent sub-queries in routing and profiling")
	runCmd.Flags().Int("max-sub-queries", 0, "soft cap on expansion size (0 = uncapped)")
	runCmd.Flags().Int("top-results", 3, "competitor pages analyzed per sub-query")
	runCmd.Flags().String("model", "", "generation model (default "+defaultModel+")")
	runCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	runCmd.Flags().String("gemini-api-key", "", "generation API key (default: .secrets/gemini-api-key)")
	runCmd.Flags().String("search-api-key", "", "search API key (default: .secrets/search-api-key)")

	_ = runCmd.MarkFlagRequired("query")
	_ = viper.BindPFlag("model", runCmd.Flags().Lookup("model"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	location, _ := cmd.Flags().GetString("location")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	workers, _ := cmd.Flags().GetInt("workers")
	maxSubQueries, _ := cmd.Flags().GetInt("max-sub-queries")
	topResults, _ := cmd.Flags().GetInt("top-results")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = defaultTimeout
	}
	model := viper.GetString("model")
	if model == "" {
		model = defaultModel
	}

	geminiFlag, _ := cmd.Flags().GetString("gemini-api-key")
	geminiKey := secrets.Resolve(loadedSecrets, secrets.KeyGemini, geminiFlag)
	if geminiKey == "" {
		return fmt.Errorf("no generation API key: set --gemini-api-key or .secrets/%s", secrets.KeyGemini)
	}
	searchFlag, _ := cmd.Flags().GetString("search-api-key")
	searchKey := secrets.Resolve(loadedSecrets, secrets.KeySearch, searchFlag)
	if searchKey == "" {
		return fmt.Errorf("no search API key: set --search-api-key or .secrets/%s", secrets.KeySearch)
	}

	ai := types.AIConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		Model:  model,
		APIKey: geminiKey,
	}
	cfg := types.PipelineConfig{
		Expansion: types.ExpansionConfig{AIConfig: ai, MaxSubQueries: maxSubQueries},
		Routing:   types.RoutingConfig{AIConfig: ai, Workers: workers},
		Profiling: types.ProfilingConfig{AIConfig: ai, Workers: workers, TopResults: topResults},
		Retrieval: types.RetrievalConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   timeout,
				UserAgent: defaultUserAgent,
			},
			APIKey:     searchKey,
			CreditCost: 0.005,
		},
		Output: types.OutputConfig{OutputDir: outputDir},
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger := costs.NewLedger()
	p := pipeline.New(
		genai.NewGemini(cfg.Expansion.AIConfig, types.StageExpansion, ledger),
		genai.NewGemini(cfg.Routing.AIConfig, types.StageRouting, ledger),
		genai.NewGemini(cfg.Profiling.AIConfig, types.StageProfiling, ledger),
		retrieval.NewWebClient(cfg.Retrieval, ledger),
		ledger,
		cfg,
		os.Stderr,
	)

	run, err := p.Execute(ctx, query, location)
	if err != nil {
		return err
	}

	runPath := pipeline.RunArtifactPath(outputDir, run.StartedAt)
	if err := pipeline.SaveRun(run, runPath); err != nil {
		return err
	}
	reportPath := pipeline.ReportArtifactPath(outputDir, run.StartedAt)
	if err := plan.WriteReport(run, reportPath); err != nil {
		return err
	}
	costsPath := pipeline.CostsArtifactPath(outputDir, run.StartedAt)
	if err := costs.WriteSummary(costsPath, run.Costs); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "run saved to %s\nplan saved to %s\n", runPath, reportPath)
	costs.FormatSummary(run.Costs, os.Stdout)
	return nil
}
