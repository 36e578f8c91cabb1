package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	imagesource "github.com/Skryldev/image-source"
	"github.com/Skryldev/image-source/core"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/hooks"
)

func (c *CLI) newFetchCommand() *cobra.Command {
	var memory, stats bool

	cmd := &cobra.Command{
		Use:   "fetch ADDRESS...",
		Short: "Fetch addresses into the disk cache (or decode them with --memory)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics := hooks.NewInMemoryMetrics()
			m, cleanup, err := c.newManager(metrics)
			if err != nil {
				return err
			}
			defer cleanup()

			dest := core.Destination(m.Files())
			if memory {
				dest = m.Memory()
			}
			reqs, errs := m.FetchAll(cmd.Context(), args, dest)

			failed := 0
			for i, addr := range args {
				if errs[i] != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", red("✗"), addr, gray(errs[i].Error()))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", green("✓"), addr, describeRequest(reqs[i]))
				if mr, ok := reqs[i].(*core.MemoryRequest); ok {
					mr.Close()
				}
			}
			if stats {
				printStats(cmd, metrics.Snapshot())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d addresses failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "decode into memory instead of writing the disk cache")
	cmd.Flags().BoolVar(&stats, "stats", false, "print fetch metrics")
	return cmd
}

func describeRequest(req core.Request) string {
	switch r := req.(type) {
	case *core.FileRequest:
		return gray(r.Filename())
	case *core.MemoryRequest:
		if img := r.Image(); img != nil {
			return gray(img.Size().String())
		}
		return gray("closed")
	default:
		return gray(fmt.Sprintf("%T", req))
	}
}

func printStats(cmd *cobra.Command, s hooks.MetricsSnapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold("fetches"))
	for _, scheme := range sortedKeys(s.FetchCalls) {
		fmt.Fprintf(out, "  %-16s calls=%d hits=%d coalesced=%d total=%dms\n",
			scheme, s.FetchCalls[scheme], s.CacheHits[scheme], s.Coalesced[scheme], s.FetchDurationsMs[scheme])
	}
	if len(s.StepCalls) > 0 {
		fmt.Fprintln(out, bold("steps"))
		for _, step := range sortedKeys(s.StepCalls) {
			fmt.Fprintf(out, "  %-16s calls=%d total=%dms\n", step, s.StepCalls[step], s.StepDurationsMs[step])
		}
	}
	if len(s.Errors) > 0 {
		fmt.Fprintln(out, bold("errors"))
		for _, key := range sortedKeys(s.Errors) {
			fmt.Fprintf(out, "  %-16s %d\n", key, s.Errors[key])
		}
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *CLI) newDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe ADDRESS",
		Short: "Print the description an address resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := c.newManager(nil)
			if err != nil {
				return err
			}
			defer cleanup()

			d, err := m.Describe(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", bold("address"), d.Address())
			fmt.Fprintf(out, "%s %q\n", bold("extension"), d.Extension())
			switch d := d.(type) {
			case core.AssetDescription:
				fmt.Fprintf(out, "%s asset %s\n%s %s\n", bold("kind"), d.Kind, bold("asset_ref"), d.AssetRef)
			case core.RemoteDescription:
				fmt.Fprintf(out, "%s remote %s\n%s %s\n", bold("kind"), d.Kind, bold("path"), d.Path)
			case core.ScaledDescription:
				fmt.Fprintf(out, "%s scaled %s %s\n%s %s\n", bold("kind"), d.Size, d.Mode, bold("source"), d.Source)
			}
			fmt.Fprintf(out, "%s %s\n", bold("file"), m.Files().Filename(d))
			return nil
		},
	}
}

func newPlanCommand() *cobra.Command {
	var source, target string
	var crop, unknown bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the decode budget and scale/crop plan for a source and target size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := parseSize(source)
			if err != nil {
				return fmt.Errorf("--source: %w", err)
			}
			dst, err := parseSize(target)
			if err != nil {
				return fmt.Errorf("--target: %w", err)
			}
			mode := geometry.Fit
			if crop {
				mode = geometry.Fill
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d\n", bold("max_pixel_size"), geometry.MaxPixelSize(src, !unknown, dst))
			fmt.Fprintf(out, "%s %d\n", bold("decode_budget"), geometry.DecodeBudget(src, !unknown, dst, mode))
			plan, err := geometry.PlanScaleCrop(src, dst, mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n%s %.4f\n%s %s\n%s %s\n", bold("op"), plan.Op,
				bold("scale"), plan.Scale, bold("scaled"), plan.ScaledSize, bold("output"), plan.Output)
			switch plan.Op {
			case geometry.OpRender:
				fmt.Fprintf(out, "%s %+v\n", bold("draw"), plan.Draw)
			case geometry.OpCrop:
				fmt.Fprintf(out, "%s %+v\n", bold("crop"), plan.Crop)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source size WxH")
	cmd.Flags().StringVar(&target, "target", "", "target size WxH")
	cmd.Flags().BoolVar(&crop, "crop", false, "fill the target with a centered crop")
	cmd.Flags().BoolVar(&unknown, "unknown-source", false, "compute the budget as if the source size were unknown")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newAddressCommand() *cobra.Command {
	var width, height int
	var crop bool
	var ext string

	cmd := &cobra.Command{
		Use:   "address SOURCE",
		Short: "Build the scaled address for SOURCE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if width <= 0 || height <= 0 {
				return fmt.Errorf("--width and --height must be positive")
			}
			fmt.Fprintln(cmd.OutOrStdout(), imagesource.ScaledAddress(args[0], width, height, crop, ext))
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "target width")
	cmd.Flags().IntVar(&height, "height", 0, "target height")
	cmd.Flags().BoolVar(&crop, "crop", false, "fill the target with a centered crop")
	cmd.Flags().StringVar(&ext, "ext", "", "force the output extension")
	return cmd
}

func parseSize(s string) (geometry.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return geometry.Size{}, fmt.Errorf("want WxH, got %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return geometry.Size{}, err
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return geometry.Size{}, err
	}
	return geometry.Size{Width: width, Height: height}, nil
}
