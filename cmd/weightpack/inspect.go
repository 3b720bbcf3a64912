package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/weightpack"
	"github.com/hupe1980/weightpack/blobstore"
	"github.com/hupe1980/weightpack/compress"
	"github.com/hupe1980/weightpack/internal/nuq"
)

// elements estimates the element count of a blob from its size.
func elements(tr compress.Traits, size int64) int64 {
	switch tr.Tag() {
	case compress.TagNUQ:
		return size / nuq.SlotBytes * nuq.GroupSize
	default:
		return size * 1000 / int64(tr.PackedSize(1000))
	}
}

func newInspectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "List the blobs of a cache file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := blobstore.Open(ctx, a.store, a.cfg.Cache.Filename, blobstore.WithResourceController(a.rc))
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:      %s\n", a.cfg.Cache.Filename)
			fmt.Fprintf(out, "size:      %d bytes\n", r.Size())
			fmt.Fprintf(out, "checksums: %t\n\n", r.HasChecksums())

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TENSOR\tREPR\tOFFSET\tBYTES\tELEMENTS")

			scalesKey := compress.CacheKey[compress.F32](weightpack.ScalesName)
			var scales []byte
			for _, k := range r.Keys() {
				e, _ := r.Entry(k)
				if k == scalesKey {
					scales = make([]byte, e.Size)
					if err := r.Enqueue(k, scales); err != nil {
						return err
					}
					continue
				}

				s := k.String()
				if s == "" {
					continue
				}
				repr, elems := "?", "?"
				if tr, ok := compress.ByTag(compress.Tag(s[0])); ok {
					repr = tr.Name()
					elems = fmt.Sprint(elements(tr, e.Size))
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s[1:], repr, e.Offset, e.Size, elems)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if scales != nil {
				if err := r.ReadAll(ctx, a.pool); err != nil {
					return err
				}
				fmt.Fprint(out, "\nscales:")
				for i := 0; i+4 <= len(scales); i += 4 {
					fmt.Fprintf(out, " %g", math.Float32frombits(binary.LittleEndian.Uint32(scales[i:])))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}
