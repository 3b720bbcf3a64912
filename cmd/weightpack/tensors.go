package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/weightpack"
	"github.com/hupe1980/weightpack/blobstore"
	"github.com/hupe1980/weightpack/compress"
	"github.com/hupe1980/weightpack/internal/config"
	"github.com/hupe1980/weightpack/internal/sfp"
	"github.com/hupe1980/weightpack/resource"
)

// tensorExt marks raw little-endian float32 tensor files.
const tensorExt = ".f32"

// tensor is one input file.
type tensor struct {
	name string
	path string
	n    int
}

// listTensors returns the tensors in dir sorted by name.
func listTensors(dir string) ([]tensor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []tensor
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), tensorExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), tensorExt)
		// One key byte is taken by the representation tag.
		if len(name) > blobstore.KeySize-1 {
			return nil, fmt.Errorf("tensor name %q longer than %d bytes", name, blobstore.KeySize-1)
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		if info.Size()%4 != 0 {
			return nil, fmt.Errorf("tensor %q: size %d is not a multiple of 4", name, info.Size())
		}
		out = append(out, tensor{name: name, path: filepath.Join(dir, e.Name()), n: int(info.Size() / 4)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no %s files in %s", tensorExt, dir)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// readTensor reads t through rc's IO budget. rc may be nil.
func readTensor(ctx context.Context, t tensor, rc *resource.Controller) ([]float32, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw := make([]byte, 4*t.n)
	if _, err := io.ReadFull(resource.NewRateLimitedReader(ctx, f, rc), raw); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("tensor %q changed size while reading", t.name)
		}
		return nil, fmt.Errorf("tensor %q: %w", t.name, err)
	}
	out := make([]float32, t.n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

func writeTensor(path string, values []float32) error {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return os.WriteFile(path, raw, 0o644)
}

// model pairs every input tensor with its compressed buffer.
type model struct {
	tensors []tensor
	bufs    []compress.Buffer
	scales  []float32
	read    func(tensor) ([]float32, error)
}

func newModel(ctx context.Context, dir string, cfg config.CompressConfig, rc *resource.Controller) (*model, error) {
	tensors, err := listTensors(dir)
	if err != nil {
		return nil, err
	}

	m := &model{
		tensors: tensors,
		scales:  make([]float32, len(tensors)),
		read: func(t tensor) ([]float32, error) {
			return readTensor(ctx, t, rc)
		},
	}
	for _, t := range tensors {
		tr, err := compress.ByName(cfg.RepresentationFor(t.name))
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", t.name, err)
		}
		buf, _ := compress.NewBuffer(tr.Tag(), t.n)
		m.bufs = append(m.bufs, buf)
	}
	return m, nil
}

// source implements weightpack.TensorSource. With weights, SFP tensors
// exceeding the representable range are scaled down and their scale is
// recorded in m.scales.
func (m *model) source(withWeights bool, visit weightpack.Visitor) error {
	for i, t := range m.tensors {
		if !withWeights {
			visit(t.name, nil, m.bufs[i])
			continue
		}

		w, err := m.read(t)
		if err != nil {
			return err
		}
		m.scales[i] = 1
		if m.bufs[i].Tag() == compress.TagSFP {
			m.scales[i] = scaleToRange(w, sfp.MaxMagnitude)
		}
		visit(t.name, w, m.bufs[i])
	}
	return nil
}

// scaleToRange divides w in place so that max |w| <= limit and returns the
// factor that restores the original values.
func scaleToRange(w []float32, limit float32) float32 {
	var maxAbs float32
	for _, v := range w {
		maxAbs = max(maxAbs, float32(math.Abs(float64(v))))
	}
	if maxAbs <= limit {
		return 1
	}
	scale := maxAbs / limit
	inv := 1 / scale
	for i := range w {
		w[i] *= inv
	}
	return scale
}
