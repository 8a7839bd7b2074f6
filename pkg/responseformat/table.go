package responseformat

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chrissnell/wellsim/internal/types"
)

// WriteTable prints a run as an aligned text table, one row per snapshot,
// followed by its diagnostics.
func WriteTable(out io.Writer, res *types.RunResult) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(out, "run %s (%s) %s converged=%v\n", res.ID, res.Kind, res.Status, res.Converged)
	if res.Kind == types.KindCirculation {
		fmt.Fprintln(tw, "pumped m3\tfluid\tcontrol ESD\tECD\tstatic kPa\tAPL kPa\teffective kPa\trate m3/min\treturns m3\t")
		for _, s := range res.Snapshots {
			fmt.Fprintf(tw, "%.3f\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%.3f\t%.3f\t\n",
				s.PumpedVolume, s.PumpingFluid, s.ControlESD, s.ControlECD,
				s.StaticSABP, s.APL, s.EffectiveSABP, s.PumpRate, s.ReturnsVolume)
		}
	} else {
		fmt.Fprintln(tw, "bit MD\tbit TVD\tfloat\tESD TD\treq kPa\tfloat kPa\tactual kPa\tswab kPa\tbackfill m3\tslug m3\tpit m3\t")
		for _, s := range res.Snapshots {
			fmt.Fprintf(tw, "%.1f\t%.1f\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%.3f\t%.3f\t%.3f\t\n",
				s.BitMD, s.BitTVD, s.FloatState, s.ESDAtTD, s.RequiredSABP, s.FloatAwareSABP,
				s.ActualSABP, s.SwabSurge, s.CumulativeBackfill, s.CumulativeSlug, s.CumulativePitGain)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, d := range res.Diagnostics {
		fmt.Fprintf(out, "%s: %s at %.1f m: %s\n", d.Level, d.Source, d.BitMD, d.Message)
	}
	return nil
}
