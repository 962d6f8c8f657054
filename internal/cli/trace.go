package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapelab/reclip/internal/arrange"
	"github.com/tapelab/reclip/internal/oplog"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	Token   string
	Limit   int
}

// TraceResult holds the journal entries for one request.
type TraceResult struct {
	RequestToken string     `json:"request_token"`
	Ops          []TraceOp  `json:"ops"`
	Stats        TraceStats `json:"stats"`
}

// TraceOp is one journaled host verb.
type TraceOp struct {
	Seq    int64   `json:"seq"`
	Verb   string  `json:"verb"`
	Clip   string  `json:"clip,omitempty"`
	Track  int     `json:"track"`
	Beat   float64 `json:"beat,omitempty"`
	Detail string  `json:"detail,omitempty"`
}

// TraceStats summarizes a request's host traffic.
type TraceStats struct {
	TotalOps   int `json:"total_ops"`
	Trims      int `json:"trims"`
	Duplicates int `json:"duplicates"`
	Deletes    int `json:"deletes"`
	Rescans    int `json:"rescans"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect the operation journal",
		Long: `Inspect the operation journal.

Every host verb the engine issues is journaled under its request token.
With --request, shows the full call chain for that request. Without it,
lists recent requests.

Examples:
  reclip trace --journal ./reclip.db
  reclip trace --journal ./reclip.db --request 0190b7e2-...
  reclip trace --journal ./reclip.db --request 0190b7e2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Token, "request", "", "request token to trace")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "max requests to list")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	journal, err := oplog.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer journal.Close()

	if opts.Token == "" {
		return listRequests(ctx, journal, formatter, opts.Limit)
	}

	entries, err := journal.ReadRequest(ctx, opts.Token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read request", err)
	}
	if len(entries) == 0 {
		if opts.Format == "json" {
			return formatter.Success(TraceResult{RequestToken: opts.Token, Ops: []TraceOp{}}, nil)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No operations found for request: %s\n", opts.Token)
		return nil
	}

	result := buildTrace(opts.Token, entries)
	if opts.Format == "json" {
		return formatter.Success(result, nil)
	}
	return outputTraceText(cmd, result)
}

func listRequests(ctx context.Context, journal *oplog.Journal, formatter *OutputFormatter, limit int) error {
	summaries, err := journal.Requests(ctx, limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list requests", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries, nil)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "Journal is empty.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "%s  %3d ops  started %s\n", s.Token, s.Ops, s.Started)
	}
	return nil
}

func buildTrace(token string, entries []arrange.Entry) TraceResult {
	result := TraceResult{RequestToken: token}
	for _, e := range entries {
		result.Ops = append(result.Ops, TraceOp{
			Seq:    e.Seq,
			Verb:   e.Verb,
			Clip:   string(e.Clip),
			Track:  int(e.Track),
			Beat:   e.Beat,
			Detail: e.Detail,
		})
		result.Stats.TotalOps++
		switch e.Verb {
		case "trim":
			result.Stats.Trims++
		case "duplicate", "duplicate-session":
			result.Stats.Duplicates++
		case "delete":
			result.Stats.Deletes++
		case "rescan":
			result.Stats.Rescans++
		}
	}
	return result
}

func outputTraceText(cmd *cobra.Command, result TraceResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for request: %s\n", result.RequestToken)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Operations ===")
	for _, op := range result.Ops {
		switch op.Verb {
		case "rescan":
			fmt.Fprintf(w, "  [%d] %-17s track %d\n", op.Seq, op.Verb, op.Track)
		case "duplicate", "duplicate-session", "create":
			fmt.Fprintf(w, "  [%d] %-17s %s @ %.3f\n", op.Seq, op.Verb, op.Clip, op.Beat)
		default:
			fmt.Fprintf(w, "  [%d] %-17s %s", op.Seq, op.Verb, op.Clip)
			if op.Detail != "" {
				fmt.Fprintf(w, "  %s", op.Detail)
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total ops:  %d\n", result.Stats.TotalOps)
	fmt.Fprintf(w, "  Trims:      %d\n", result.Stats.Trims)
	fmt.Fprintf(w, "  Duplicates: %d\n", result.Stats.Duplicates)
	fmt.Fprintf(w, "  Deletes:    %d\n", result.Stats.Deletes)
	fmt.Fprintf(w, "  Rescans:    %d\n", result.Stats.Rescans)

	return nil
}
