// Command importer loads a project or scholarship workbook into the
// fondos database.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"fondos/internal/config"
	"fondos/internal/domain"
	"fondos/internal/logger"
	"fondos/internal/service"
)

const defaultWorkbook = "data/proyectos.xlsx"

type importFlags struct {
	recordType  string
	sheet       string
	conflictKey string
	period      int
	batchSize   int
	reset       bool
	dryRun      bool
	expected    int
	issuesCSV   string
	notify      []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f importFlags

	rootCmd := &cobra.Command{
		Use:   "importer [workbook.xlsx | s3://bucket/key]",
		Short: "Import a funding workbook into the database",
		Long: `importer reads a project or scholarship workbook, reconciles its catalog
references and upserts the resulting records. Runs are idempotent: rows are
keyed by their code or sequence number.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := defaultWorkbook
			if len(args) == 1 {
				source = args[0]
			}
			return runImport(cmd, source, &f)
		},
	}

	bindImportFlags(rootCmd.Flags(), &f)

	rootCmd.AddCommand(newRunCmd())
	return rootCmd
}

func bindImportFlags(fl *pflag.FlagSet, f *importFlags) {
	fl.StringVarP(&f.recordType, "type", "t", "", "record type: project or scholarship")
	fl.StringVar(&f.sheet, "sheet", "", "primary sheet name (default: detected)")
	fl.StringVar(&f.conflictKey, "conflict-key", "", "upsert key: code or seq")
	fl.IntVar(&f.period, "period", 0, "period for rows without one (default: current year)")
	fl.IntVar(&f.batchSize, "batch-size", 0, "records per write batch")
	fl.BoolVar(&f.reset, "reset", false, "delete existing rows of the record type first")
	fl.BoolVar(&f.dryRun, "dry-run", false, "map and validate without touching the database")
	fl.IntVar(&f.expected, "expected", 0, "expected persisted count, compared in the summary")
	fl.StringVar(&f.issuesCSV, "issues-csv", "", "write row-level issues to this CSV file")
	fl.StringSliceVar(&f.notify, "notify", nil, "email the run summary to these addresses")
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "run <id>",
		Short:        "Show the outcome of a previous import run",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log, err := logger.New(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			app, err := setup(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			run, err := app.svc.GetRun(cmd.Context(), id)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("import run %s not found", id)
			}
			if err != nil {
				return err
			}
			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}
}

func runImport(cmd *cobra.Command, source string, f *importFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd.Flags(), cfg, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	req, err := buildRequest(cfg, source)
	if err != nil {
		return err
	}

	summary, err := app.svc.Run(ctx, req)
	if err != nil {
		log.WithError(err).Error("import failed")
		return err
	}
	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

// applyFlags lets explicitly set flags override environment configuration.
func applyFlags(fl *pflag.FlagSet, cfg *config.Config, f *importFlags) {
	if fl.Changed("type") {
		cfg.Import.RecordType = f.recordType
	}
	if fl.Changed("sheet") {
		cfg.Import.Sheet = f.sheet
	}
	if fl.Changed("conflict-key") {
		cfg.Import.ConflictKey = f.conflictKey
	}
	if fl.Changed("period") {
		cfg.Import.Period = f.period
	}
	if fl.Changed("batch-size") {
		cfg.Import.BatchSize = config.ClampBatchSize(f.batchSize)
	}
	if fl.Changed("reset") {
		cfg.Import.Reset = f.reset
	}
	if fl.Changed("dry-run") {
		cfg.Import.DryRun = f.dryRun
	}
	if fl.Changed("expected") {
		cfg.Import.ExpectedCount = f.expected
	}
	if fl.Changed("issues-csv") {
		cfg.Import.IssuesCSV = f.issuesCSV
	}
	if fl.Changed("notify") {
		cfg.Import.NotifyTo = f.notify
	}
}

func buildRequest(cfg *config.Config, source string) (service.ImportRequest, error) {
	recordType, err := cfg.RecordType()
	if err != nil {
		return service.ImportRequest{}, err
	}
	key, err := cfg.ConflictKey()
	if err != nil {
		return service.ImportRequest{}, err
	}
	req := service.ImportRequest{
		Source:        source,
		RecordType:    recordType,
		Sheet:         cfg.Import.Sheet,
		ConflictKey:   key,
		Period:        cfg.Import.Period,
		BatchSize:     config.ClampBatchSize(cfg.Import.BatchSize),
		ProgressEvery: cfg.Import.ProgressEvery,
		Reset:         cfg.Import.Reset,
		ExpectedCount: cfg.Import.ExpectedCount,
		IssuesCSV:     cfg.Import.IssuesCSV,
		NotifyTo:      cfg.Import.NotifyTo,
	}
	if cfg.Import.DryRun {
		req.Reset = false
		req.NotifyTo = nil
	}
	return req, nil
}

func printSummary(w io.Writer, s *domain.ImportSummary) {
	fmt.Fprintf(w, "\nImport complete (run %s)\n", s.RunID)
	fmt.Fprintf(w, "  Sheet:                %s\n", s.Sheet)
	fmt.Fprintf(w, "  Rows read:            %d\n", s.RowsRead)
	fmt.Fprintf(w, "  Inserted:             %d\n", s.Inserted)
	fmt.Fprintf(w, "  Updated:              %d\n", s.Updated)
	fmt.Fprintf(w, "  Skipped (no id):      %d\n", s.SkippedMissingID)
	fmt.Fprintf(w, "  Skipped (duplicate):  %d\n", s.SkippedDuplicate)
	fmt.Fprintf(w, "  Failed to persist:    %d\n", s.FailedPersist)
	fmt.Fprintf(w, "  Unresolved refs:      %d\n", s.UnresolvedFKs)
	fmt.Fprintf(w, "  Unknown ids kept:     %d\n", s.UnknownIDs)
	fmt.Fprintf(w, "  Zero amounts:         %d\n", s.ZeroAmounts)
	fmt.Fprintf(w, "  Advances written:     %d (failed %d)\n", s.AdvancesWritten, s.AdvancesFailed)

	dims := make([]string, 0, len(s.CatalogCreated))
	for dim := range s.CatalogCreated {
		dims = append(dims, string(dim))
	}
	sort.Strings(dims)
	for _, dim := range dims {
		fmt.Fprintf(w, "  Created %-13s %d\n", dim+":", s.CatalogCreated[domain.Dimension(dim)])
	}

	if s.ExpectedCount > 0 {
		mark := "OK"
		if !s.MatchesExpected() {
			mark = "MISMATCH"
		}
		fmt.Fprintf(w, "  Expected:             %d, persisted %d [%s]\n", s.ExpectedCount, s.Persisted(), mark)
	}
	if !s.Balanced() {
		fmt.Fprintln(w, "  WARN: row counts do not balance")
	}
}

func printRun(w io.Writer, r *domain.ImportRun) {
	fmt.Fprintf(w, "Run %s\n", r.ID)
	fmt.Fprintf(w, "  Record type:  %s\n", r.RecordType)
	fmt.Fprintf(w, "  Source:       %s\n", r.Source)
	fmt.Fprintf(w, "  Status:       %s\n", r.Status)
	fmt.Fprintf(w, "  Started:      %s\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "  Finished:     %s\n", r.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(w, "  Rows read:    %d\n", r.RowsRead)
	fmt.Fprintf(w, "  Inserted:     %d\n", r.Inserted)
	fmt.Fprintf(w, "  Updated:      %d\n", r.Updated)
	fmt.Fprintf(w, "  Skipped:      %d missing id, %d duplicate\n", r.SkippedMissingID, r.SkippedDuplicate)
	fmt.Fprintf(w, "  Failed:       %d\n", r.FailedPersist)
	if r.ErrorMessage != "" {
		fmt.Fprintf(w, "  Error:        %s\n", r.ErrorMessage)
	}
}
