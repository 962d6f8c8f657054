package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tapelab/reclip/internal/arrange"
	"github.com/tapelab/reclip/internal/config"
	"github.com/tapelab/reclip/internal/host"
	"github.com/tapelab/reclip/internal/metrics"
	"github.com/tapelab/reclip/internal/notation"
	"github.com/tapelab/reclip/internal/oplog"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Clips  []string
	Split  string
	Slice  string
	Start  string
	Length string
	Name   string
	Color  int
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply structural and property edits to arrangement clips",
		Long: `Apply structural and property edits to arrangement clips.

Structural operations run in a fixed order: move/stack, then split or
slice, then lengthen. Positions use bar|beat notation ("3|1"); lengths
and slice intervals use bar:beat notation ("1:2").

Examples:
  reclip update --clips clip-12 --split "2|1, 3|1"
  reclip update --clips clip-12 --slice 1:0
  reclip update --clips clip-12 --length 8:0
  reclip update --clips clip-12,clip-31,clip-40 --start 5|1
  reclip update --clips clip-12 --start "5|1, 9|1, 13|1"
  reclip update --clips clip-12 --name "Chorus B" --color 17`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Clips, "clips", nil, "clip ids to edit (required)")
	_ = cmd.MarkFlagRequired("clips")
	cmd.Flags().StringVar(&opts.Split, "split", "", "comma-separated bar|beat cut positions")
	cmd.Flags().StringVar(&opts.Slice, "slice", "", "uniform cut interval (bar:beat)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "arrangement move target(s), comma-separated bar|beat")
	cmd.Flags().StringVar(&opts.Length, "length", "", "target clip length (bar:beat)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "rename the resulting clip(s)")
	cmd.Flags().IntVar(&opts.Color, "color", 0, "recolor the resulting clip(s)")

	return cmd
}

// clipPayload is the wire shape of one clip in command output.
type clipPayload struct {
	ClipID    string  `json:"clip_id"`
	Track     int     `json:"track"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Length    float64 `json:"length"`
	Position  string  `json:"position"`
	Name      string  `json:"name,omitempty"`
	Color     int     `json:"color,omitempty"`
	Looping   bool    `json:"looping"`
}

func runUpdate(opts *UpdateOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	meter, err := cfg.ParsedMeter()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid meter", err)
	}

	eng, cleanup, err := buildEngine(cfg, meter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize engine", err)
	}
	defer cleanup()

	req := arrange.Request{
		Split:             opts.Split,
		Slice:             opts.Slice,
		ArrangementStart:  opts.Start,
		ArrangementLength: opts.Length,
	}
	for _, id := range opts.Clips {
		id = strings.TrimSpace(id)
		if id != "" {
			req.ClipIDs = append(req.ClipIDs, host.ClipID(id))
		}
	}
	if cmd.Flags().Changed("name") {
		req.Name = &opts.Name
	}
	if cmd.Flags().Changed("color") {
		req.Color = &opts.Color
	}

	result, err := eng.Update(ctx, req)
	if err != nil {
		var reqErr *arrange.RequestError
		if errors.As(err, &reqErr) {
			_ = formatter.Error(string(reqErr.Code), reqErr.Error(), nil)
			return WrapExitError(ExitCommandError, "request rejected", err)
		}
		_ = formatter.Error("OPERATION_FAILED", err.Error(), nil)
		return WrapExitError(ExitFailure, "update failed", err)
	}

	return outputResult(formatter, result, meter)
}

// buildEngine assembles the engine from config: bridge transport,
// optional journal, optional telemetry.
func buildEngine(cfg config.Config, meter notation.Meter) (*arrange.Engine, func(), error) {
	bridge := host.NewBridge(cfg.HostURL, cfg.HostTimeout)

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	engOpts := []arrange.Option{
		arrange.WithMeter(meter),
		arrange.WithHoldingStart(cfg.HoldingStart),
		arrange.WithMaxSplitPoints(cfg.MaxSplitPoints),
		arrange.WithSessionSlot(cfg.SessionSlot),
	}

	if cfg.JournalPath != "" {
		journal, err := oplog.Open(cfg.JournalPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		cleanups = append(cleanups, func() { _ = journal.Close() })
		engOpts = append(engOpts, arrange.WithRecorder(journal))
	}

	if cfg.SentryDSN != "" {
		reporter, err := metrics.Init(cfg.SentryDSN, cfg.Environment)
		if err != nil {
			return nil, cleanup, fmt.Errorf("init telemetry: %w", err)
		}
		cleanups = append(cleanups, reporter.Flush)
		engOpts = append(engOpts, arrange.WithReporter(reporter))
	}

	return arrange.New(bridge, engOpts...), cleanup, nil
}

// outputResult renders the engine result: a single object when one clip
// came back, an array otherwise.
func outputResult(f *OutputFormatter, result *arrange.Result, meter notation.Meter) error {
	payloads := make([]clipPayload, len(result.Clips))
	for i, c := range result.Clips {
		payloads[i] = clipPayload{
			ClipID:    string(c.ID),
			Track:     int(c.Track),
			StartTime: c.Props.StartTime,
			EndTime:   c.Props.EndTime,
			Length:    c.Props.Length(),
			Position:  notation.FormatPosition(c.Props.StartTime, meter),
			Name:      c.Props.Name,
			Color:     c.Props.Color,
			Looping:   c.Props.Looping,
		}
	}

	if f.Format == "json" {
		if len(payloads) == 1 {
			return f.Success(payloads[0], result.WarningStrings())
		}
		return f.Success(payloads, result.WarningStrings())
	}

	var b strings.Builder
	for _, p := range payloads {
		fmt.Fprintf(&b, "%s  track %d  %s  %s beats",
			p.ClipID, p.Track, p.Position, notation.FormatBeats(p.Length))
		if p.Name != "" {
			fmt.Fprintf(&b, "  %q", p.Name)
		}
		b.WriteString("\n")
	}
	return f.Success(strings.TrimRight(b.String(), "\n"), result.WarningStrings())
}
