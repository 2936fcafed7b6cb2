package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/gogpu/framegraph"
)

func writePlan(out io.Writer, g *framegraph.RenderGraph) {
	fmt.Fprintf(out, "%d passes, %d levels, extent %s, %d frames in flight\n\n",
		len(g.Passes()), g.Levels(), g.Extent(), g.FramesInFlight())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tLEVEL\tQUEUE\tPASS\tREADS\tWRITES\tRENDER PASS")
	for _, p := range g.Passes() {
		rp := "-"
		if p.IsRenderPass() {
			rp = fmt.Sprintf("%d color, %s", len(p.ColorAttachments()), p.Extent())
			if _, ok := p.DepthAttachment(); ok {
				rp += ", depth"
			}
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n", p.Order(), p.Level(), p.Queue(), p.Name(),
			list(p.Reads()), list(p.Writes()), rp)
	}
	tw.Flush()
}

func writeBarriers(out io.Writer, g *framegraph.RenderGraph) {
	batches := g.Barriers()
	if len(batches) == 0 {
		return
	}
	fmt.Fprintln(out, "\nBarriers:")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tFAMILY\tRESOURCE\tSTAGES\tACCESS\tLAYOUT")
	for _, bb := range batches {
		for _, br := range bb.Barriers {
			layout := "-"
			if br.Kind == framegraph.ResourceImage {
				layout = fmt.Sprintf("%s -> %s", br.OldLayout, br.NewLayout)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s -> %s\t%s -> %s\t%s\n", bb.Level, bb.Family, br.Resource,
				br.SrcStages, br.DstStages, br.SrcAccess, br.DstAccess, layout)
		}
	}
	tw.Flush()
}

func writeRecorded(out io.Writer, g *framegraph.RenderGraph, recorded map[string]int) {
	fmt.Fprintf(out, "\nExecuted %d frames:\n", g.FrameNumber())
	for _, p := range g.Passes() {
		fmt.Fprintf(out, "  %s recorded %d times\n", p.Name(), recorded[p.Name()])
	}
}

func list(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}
