// Command seedcatalogs converts the master catalog sheets of a workbook into
// a SQL seed file. Identifiers are assigned exactly as an import would
// assign them on an empty database.
// Usage: go run ./cmd/seedcatalogs data/proyectos.xlsx
// Output: db/seeds/catalogs.sql
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fondos/internal/catalog"
	"fondos/internal/domain"
	"fondos/internal/mapper"
	"fondos/internal/port"
	"fondos/internal/repository/memory"
	"fondos/internal/service"
	"fondos/internal/workbook"
)

const batchSize = 500

func main() {
	var outPath string

	rootCmd := &cobra.Command{
		Use:          "seedcatalogs <workbook.xlsx>",
		Short:        "Generate a SQL seed file from master catalog sheets",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			log.SetOutput(cmd.ErrOrStderr())
			return run(cmd.Context(), args[0], outPath, log)
		},
	}
	rootCmd.Flags().StringVarP(&outPath, "output", "o", "db/seeds/catalogs.sql", "output SQL file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, source, outPath string, log logrus.FieldLogger) error {
	wb, err := workbook.Open(source)
	if err != nil {
		return err
	}

	store := memory.NewStore()
	resolver := catalog.NewResolver(store.Catalogs(), catalog.DefaultPolicies(), log)
	if err := resolver.PreloadAll(ctx); err != nil {
		return err
	}

	for _, seed := range mapper.ReadCatalogSheets(wb, nil) {
		if !seed.Bound {
			log.WithField("sheet", seed.Sheet).Warn("catalog sheet has no description column, ignored")
			continue
		}
		created, err := resolver.Seed(ctx, seed.Dimension, seed.Entries)
		if err != nil {
			return fmt.Errorf("seed %s from sheet %q: %w", seed.Dimension, seed.Sheet, err)
		}
		log.WithFields(logrus.Fields{"dimension": seed.Dimension, "sheet": seed.Sheet, "entries": created}).Info("catalog sheet read")
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() { _ = out.Close() }()

	total, err := writeSeed(ctx, out, store.Catalogs(), source)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"entries": total, "path": outPath}).Info("seed file generated")
	return nil
}

// writeSeed writes every catalog entry of repo as batched multi-row
// INSERTs inside one transaction.
func writeSeed(ctx context.Context, out io.Writer, repo port.CatalogRepository, source string) (int, error) {
	if _, err := fmt.Fprintf(out, "-- Catalog seed data generated from %s.\nBEGIN;\n\n", source); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	total := 0
	for _, dim := range domain.Dimensions {
		entries, err := repo.ListEntries(ctx, dim)
		if err != nil {
			return total, err
		}
		table, err := dim.Table()
		if err != nil {
			return total, err
		}
		for _, span := range service.Batches(len(entries), batchSize) {
			if err := writeBatch(out, table, entries[span.Start:span.End]); err != nil {
				return total, fmt.Errorf("write %s batch at offset %d: %w", table, span.Start, err)
			}
		}
		total += len(entries)
	}

	if _, err := fmt.Fprintln(out, "COMMIT;"); err != nil {
		return total, fmt.Errorf("write footer: %w", err)
	}
	return total, nil
}

func writeBatch(out io.Writer, table string, batch []domain.CatalogEntry) error {
	if len(batch) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (id, descripcion, numero) VALUES\n", table)

	for i := range batch {
		e := &batch[i]
		if i > 0 {
			b.WriteString(",\n")
		}

		numero := "NULL"
		if e.SourceNumber != nil {
			numero = strconv.Itoa(*e.SourceNumber)
		}
		fmt.Fprintf(&b, "  (%d, '%s', %s)", e.ID, escapeSQL(e.Description), numero)
	}

	b.WriteString("\nON CONFLICT (id) DO NOTHING;\n\n")

	_, err := io.WriteString(out, b.String())
	return err
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
