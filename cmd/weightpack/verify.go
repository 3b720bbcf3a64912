package main

import (
	"fmt"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/weightpack"
	"github.com/hupe1980/weightpack/internal/distortion"
)

// report summarises the reconstruction error of one tensor.
type report struct {
	name      string
	repr      string
	n         int
	exact     int
	signFlips int
	meanL1    float64
	stdL1     float64
	p99L1     float64
	maxL1     float64
	snr       float64
}

func analyze(name, repr string, orig, decoded []float32) report {
	var st distortion.Stats
	l1 := make([]float64, len(orig))
	for i := range orig {
		st.Notify(orig[i], decoded[i])
		l1[i] = math.Abs(float64(orig[i]) - float64(decoded[i]))
	}

	r := report{
		name:      name,
		repr:      repr,
		n:         len(orig),
		exact:     st.NumExact(),
		signFlips: st.NumSignFlip(),
		snr:       st.GeomeanValueDivL1(),
	}
	if len(l1) == 0 {
		return r
	}
	r.meanL1, r.stdL1 = stat.MeanStdDev(l1, nil)
	sort.Float64s(l1)
	r.p99L1 = stat.Quantile(0.99, stat.Empirical, l1, nil)
	r.maxL1 = l1[len(l1)-1]
	return r
}

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a cache file against its source tensors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := newModel(ctx, input, a.cfg.Compress, a.rc)
			if err != nil {
				return err
			}

			l := weightpack.NewCacheLoader(ctx, a.store, a.cfg.Cache.Filename, a.options()...)
			defer l.Close()
			if err := m.source(false, l.Visit); err != nil {
				return err
			}
			l.LoadScales(m.scales)
			if err := l.ReadAll(ctx, a.pool); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TENSOR\tREPR\tELEMENTS\tEXACT\tSIGN_FLIPS\tMEAN_L1\tSTD_L1\tP99_L1\tMAX_L1\tSNR")
			for i, t := range m.tensors {
				orig, err := m.read(t)
				if err != nil {
					return err
				}
				buf := m.bufs[i]
				buf.SetScale(m.scales[i])
				decoded := make([]float32, buf.Len())
				buf.DecompressTo(a.pool, decoded)

				r := analyze(t.name, buf.Traits().Name(), orig, decoded)
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.3g\t%.3g\t%.3g\t%.3g\t%.3g\n",
					r.name, r.repr, r.n, r.exact, r.signFlips, r.meanL1, r.stdL1, r.p99L1, r.maxL1, r.snr)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "directory of .f32 tensor files")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
