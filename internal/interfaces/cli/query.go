package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ell-intel-api/internal/interfaces/http/dto"
	"ell-intel-api/internal/interfaces/http/middleware"
)

const queryTimeout = 2 * time.Minute

type queryOptions struct {
	k            int
	userID       string
	noMemories   bool
	forceRefresh bool
}

func newQueryCommand(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Run a fused query against the HTTP API",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			include := !opts.noMemories
			req := dto.FusionQueryRequest{
				Query:           strings.Join(args, " "),
				K:               opts.k,
				IncludeMemories: &include,
				UserID:          opts.userID,
				ForceRefresh:    opts.forceRefresh,
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()
			return postQuery(ctx, http.DefaultClient, root.apiURL, req, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.k, "k", 0, "number of document chunks (0 uses the server default)")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "user id for memory recall")
	cmd.Flags().BoolVar(&opts.noMemories, "no-memories", false, "skip memory recall")
	cmd.Flags().BoolVar(&opts.forceRefresh, "force-refresh", false, "bypass the response cache")
	return cmd
}

// postQuery 调用 /v1/fusion/query，原样输出缩进后的响应体
func postQuery(ctx context.Context, hc *http.Client, baseURL string, req dto.FusionQueryRequest, out io.Writer) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	url := strings.TrimRight(baseURL, "/") + "/v1/fusion/query"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.UserID != "" {
		httpReq.Header.Set(middleware.UserIDHeader, req.UserID)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	if c := resp.Header.Get("X-Cache"); c != "" {
		fmt.Fprintf(out, "cache: %s\n", c)
	}
	fmt.Fprintln(out, pretty.String())

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("query failed: %s", resp.Status)
	}
	return nil
}
