package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/ontoma/pkg/client"
	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/mcp"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	endpoint string
	jsonOut  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "ontoma",
		Short:        "Map disease and phenotype terms to EFO through a running ontoma-d",
		SilenceUsage: true,
	}
	defaultEndpoint := os.Getenv("ONTOMA_ENDPOINT")
	if defaultEndpoint == "" {
		defaultEndpoint = "http://127.0.0.1:8090"
	}
	rootCmd.PersistentFlags().StringVar(&opts.endpoint, "endpoint", defaultEndpoint, "ontoma-d base URL")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print raw JSON")

	rootCmd.AddCommand(resolveCmd(opts))
	rootCmd.AddCommand(lookupCmd(opts))
	rootCmd.AddCommand(historyCmd(opts))
	rootCmd.AddCommand(mcpCmd(opts))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func resolveCmd(opts *options) *cobra.Command {
	var code, system string
	cmd := &cobra.Command{
		Use:   "resolve [label]",
		Short: "Resolve a label, or a code with --code and --system",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := client.Query{Code: code, System: system}
			if len(args) == 1 {
				q.Label = args[0]
			}
			if q.Label == "" && q.Code == "" {
				return errors.New("a label argument or --code is required")
			}
			if q.Label != "" && q.Code != "" {
				return errors.New("give either a label or --code, not both")
			}
			if q.Code != "" && q.System == "" {
				return errors.New("--code requires --system")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			res, err := client.NewClient(opts.endpoint).Resolve(ctx, q)
			if err != nil {
				return describe(err)
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printResolution(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "coded identifier, e.g. 230650")
	cmd.Flags().StringVar(&system, "system", "", "coding system of --code, e.g. OMIM or ICD9CM")
	return cmd
}

func lookupCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Query a single local index",
	}

	var ontology string
	nameCmd := &cobra.Command{
		Use:   "name <name>",
		Short: "Exact canonical name lookup in EFO or HP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := client.NewClient(opts.endpoint).LookupName(cmd.Context(), ontology, args[0])
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	nameCmd.Flags().StringVar(&ontology, "ontology", string(lookup.OntologyEFO), "ontology: efo or hp")

	var system string
	codeCmd := &cobra.Command{
		Use:   "code <code>",
		Short: "Curated coded-identifier lookup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := client.NewClient(opts.endpoint).LookupCode(cmd.Context(), system, args[0])
			if err != nil {
				return describe(err)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	codeCmd.Flags().StringVar(&system, "system", lookup.SystemOMIM, "coding system")

	cmd.AddCommand(nameCmd, codeCmd)
	return cmd
}

func historyCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent resolutions recorded by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := client.NewClient(opts.endpoint).GetResolutions(cmd.Context(), limit)
			if err != nil {
				return describe(err)
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), events)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tQUERY\tOUTCOME\tSOURCE\tTARGETS")
			for _, e := range events {
				query := e.Query.Label
				if e.Query.Code != "" {
					query = e.Query.System + ":" + e.Query.Code
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.TsEvent.Local().Format(time.DateTime), query, e.Outcome, e.Source,
					strings.Join(e.Payload.TargetIDs, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of resolutions to show")
	return cmd
}

func mcpCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Model Context Protocol on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcp.NewServer(opts.endpoint).Serve()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ontoma %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}

func printResolution(w io.Writer, res client.Resolution) {
	fmt.Fprintf(w, "source:  %s\n", res.Result.Source)
	for _, id := range res.Result.IDs {
		fmt.Fprintf(w, "target:  %s\n", id)
	}
	if res.Result.Label != "" {
		fmt.Fprintf(w, "label:   %s\n", res.Result.Label)
	}
	if res.Result.Score != 0 {
		fmt.Fprintf(w, "score:   %g\n", res.Result.Score)
	}
	if res.Result.Distance != 0 {
		fmt.Fprintf(w, "distance: %d\n", res.Result.Distance)
	}
	if len(res.Result.Degraded) > 0 {
		fmt.Fprintf(w, "skipped: %v (service unavailable)\n", res.Result.Degraded)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe turns daemon errors into short user-facing messages.
func describe(err error) error {
	switch {
	case errors.Is(err, client.ErrDaemonUnreachable):
		return fmt.Errorf("%w (is ontoma-d running?)", err)
	case errors.Is(err, lookup.ErrNotFound), errors.Is(err, lookup.ErrNoMatch):
		return fmt.Errorf("no mapping found: %w", err)
	default:
		return err
	}
}
