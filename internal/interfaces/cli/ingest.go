package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ell-intel-api/internal/application/retrieval"
	einoobs "ell-intel-api/internal/observability/eino"
	"ell-intel-api/internal/wire"
	"ell-intel-api/pkg/logger"
)

const defaultIngestBatch = 50

type documentIndexer interface {
	Index(ctx context.Context, docs []retrieval.Document) (retrieval.IndexStats, error)
}

type ingestOptions struct {
	file      string
	source    string
	sheet     string
	batchSize int
}

func newIngestCommand(root *rootOptions) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load customer records from a CSV or XLSX file into the vector store",
		Example: `  ellctl ingest --file customers.csv
  ellctl ingest --file crm.xlsx --sheet Customers --source crm --batch-size 100`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			table, err := ReadTable(opts.file, opts.sheet)
			if err != nil {
				return err
			}
			einoobs.Init()
			indexer, cleanup, err := wire.InitializeIngest(ctx, cfg)
			if err != nil {
				return fmt.Errorf("init indexer: %w", err)
			}
			defer cleanup()

			source := opts.source
			if source == "" {
				base := filepath.Base(opts.file)
				source = strings.TrimSuffix(base, filepath.Ext(base))
			}
			sum, err := runIngest(ctx, cmd.OutOrStdout(), indexer, table, source, filepath.Base(opts.file), opts.batchSize)
			if err != nil {
				return err
			}
			if sum.failed > 0 {
				return fmt.Errorf("%d of %d batches failed", sum.failed, sum.batches)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "path to a .csv or .xlsx file")
	cmd.Flags().StringVar(&opts.source, "source", "", "source name (defaults to the file name)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "sheet name for .xlsx files (defaults to the first sheet)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", defaultIngestBatch, "rows per indexing batch")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type ingestSummary struct {
	rows    int
	batches int
	failed  int
	chunks  int
}

// runIngest 单批失败不中断，最后汇总
func runIngest(ctx context.Context, out io.Writer, indexer documentIndexer, table *Table, source, fileName string, batchSize int) (ingestSummary, error) {
	var sum ingestSummary
	if len(table.Rows) == 0 {
		return sum, fmt.Errorf("%s has no data rows", fileName)
	}
	batches := BuildDocuments(table, source, fileName, batchSize)
	sum.batches = len(batches)

	for n, docs := range batches {
		stats, err := indexer.Index(ctx, docs)
		if err != nil {
			sum.failed++
			logger.Error(ctx, "ingest batch failed", err, "batch", n+1, "source", docs[0].Source)
			fmt.Fprintf(out, "batch %d/%d: failed: %v\n", n+1, len(batches), err)
			continue
		}
		sum.rows += stats.Documents
		sum.chunks += stats.Chunks
		fmt.Fprintf(out, "batch %d/%d: %d rows, %d chunks\n", n+1, len(batches), stats.Documents, stats.Chunks)
	}
	fmt.Fprintf(out, "ingested %d rows as %d chunks (%d batches, %d failed)\n", sum.rows, sum.chunks, sum.batches, sum.failed)
	return sum, nil
}
