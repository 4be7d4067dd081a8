package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ell-intel-api/internal/infrastructure/memory/memmachine"
)

type memoryOptions struct {
	userID string
	limit  int
}

func newMemoryCommand(root *rootOptions) *cobra.Command {
	opts := &memoryOptions{}
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Search or add long-term memories directly in MemMachine",
	}
	cmd.PersistentFlags().StringVarP(&opts.userID, "user", "u", "", "memory owner (defaults to the configured user)")

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withMemory(cmd, func(ctx context.Context, c *memmachine.Client) error {
				res, err := c.Search(ctx, opts.userID, strings.Join(args, " "), opts.limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	search.Flags().IntVarP(&opts.limit, "limit", "n", 5, "maximum number of memories")

	add := &cobra.Command{
		Use:   "add [content]",
		Short: "Add a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withMemory(cmd, func(ctx context.Context, c *memmachine.Client) error {
				res, err := c.Add(ctx, opts.userID, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.AddCommand(search, add)
	return cmd
}

func (o *rootOptions) withMemory(cmd *cobra.Command, fn func(ctx context.Context, c *memmachine.Client) error) error {
	cfg, err := o.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	client := memmachine.NewClient(&cfg.Memory.MemMachine)
	defer func() { _ = client.Close() }()
	return fn(cmd.Context(), client)
}

func printJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
