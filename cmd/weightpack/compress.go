package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/weightpack"
)

func newCompressCmd(g *globalFlags) *cobra.Command {
	var (
		input          string
		representation string
		force          bool
	)

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Compress a directory of .f32 tensors into a cache file",
		Long: `Compress reads every <name>.f32 file (raw little-endian float32) in the
input directory and writes them, compressed, into one cache file.

An existing valid cache file with the same tensors is left untouched unless
--force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			if representation != "" {
				a.cfg.Compress.Default = representation
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}

			m, err := newModel(ctx, input, a.cfg.Compress, a.rc)
			if err != nil {
				return err
			}

			filename := a.cfg.Cache.Filename
			if force {
				c := weightpack.NewCompressor(a.pool, a.options()...)
				if err := m.source(true, c.Visit); err != nil {
					return err
				}
				c.AddScales(m.scales)
				if err := c.WriteAll(ctx, a.store, filename); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tensors to %s\n", len(m.tensors), filename)
				return nil
			}

			loaded, err := weightpack.LoadOrCompress(ctx, a.pool, a.store, filename, m.source, m.scales, a.options()...)
			if err != nil {
				return err
			}
			if loaded {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date (%d tensors)\n", filename, len(m.tensors))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tensors to %s\n", len(m.tensors), filename)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "directory of .f32 tensor files")
	cmd.Flags().StringVarP(&representation, "representation", "r", "", "default representation: f32, bf16, sfp, nuq")
	cmd.Flags().BoolVar(&force, "force", false, "recompress even if the cache file is valid")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
