package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ell-intel-api/internal/infrastructure/embedding"
	"ell-intel-api/internal/infrastructure/persistence/redis"
)

func newCacheCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the shared Redis caches",
	}

	var model string
	purge := &cobra.Command{
		Use:   "purge-embeddings",
		Short: "Drop cached query embeddings (run after switching embedding models)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if model == "" {
				model = cfg.Embedding.Model
			}
			client, err := redis.NewClient(&cfg.Cache.Redis)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			n, err := embedding.PurgeCache(cmd.Context(), redis.NewCache(client), model)
			if err != nil {
				return fmt.Errorf("purge embeddings: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d cached embeddings for model %q\n", n, model)
			return err
		},
	}
	purge.Flags().StringVar(&model, "model", "", "embedding model whose cache to purge (defaults to the configured model)")

	cmd.AddCommand(purge)
	return cmd
}
