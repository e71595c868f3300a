package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sample is one paired record from a shard: a feature vector and its
// supervised targets. A target value of -1 means no label is available for
// that output unit.
type Sample struct {
	Key      string
	Features []float64
	Targets  []float64
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("dataset: pending pair buffer exceeded")

const defaultPendingCap = 1024

const (
	featureExt = ".vec"
	targetExt  = ".lbl"
)

// StreamShard streams paired samples from the shard at path. Each sample
// key must appear with both a <key>.vec entry (comma-separated feature
// values) and a <key>.lbl entry (comma-separated target values).
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Sample, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- errors.Wrap(err, "open shard")
			return
		}
		defer f.Close()

		tr := tar.NewReader(bufio.NewReader(f))
		pending := make(map[string]*partial)

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- errors.Wrap(err, "read tar")
				return
			}
			if hdr.FileInfo().IsDir() {
				continue
			}
			name := filepath.Base(hdr.Name)
			ext := strings.ToLower(filepath.Ext(name))
			key := strings.TrimSuffix(name, ext)

			switch ext {
			case featureExt:
				values, err := readVector(tr)
				if err != nil {
					errCh <- errors.Wrapf(err, "read features %s", name)
					return
				}
				part := pending[key]
				if part == nil {
					part = &partial{}
					pending[key] = part
				}
				part.features = values
			case targetExt:
				values, err := readVector(tr)
				if err != nil {
					errCh <- errors.Wrapf(err, "read targets %s", name)
					return
				}
				part := pending[key]
				if part == nil {
					part = &partial{}
					pending[key] = part
				}
				part.targets = values
			default:
				// ignore unknown extension
				continue
			}

			if len(pending) > pendingCap {
				errCh <- ErrPendingOverflow
				return
			}

			if part := pending[key]; part != nil && part.ready() {
				sample := Sample{Key: key, Features: part.features, Targets: part.targets}
				delete(pending, key)

				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- sample:
				}
			}
		}

		if len(pending) > 0 {
			errCh <- errors.Errorf("%d samples incomplete", len(pending))
		}
	}()

	return out, errCh
}

func readVector(r io.Reader) ([]float64, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimSpace(string(payload)), ",")
	values := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse value %q", field)
		}
		values = append(values, v)
	}
	return values, nil
}

type partial struct {
	features []float64
	targets  []float64
}

func (p *partial) ready() bool {
	return p.features != nil && p.targets != nil
}
