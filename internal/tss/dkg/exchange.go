package dkg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/pkg/logger"
)

// Exchange carries dealer transcripts between session members. Receivers
// verify everything they fetch; the channel itself is untrusted.
type Exchange interface {
	Publish(ctx context.Context, t *PVSSTranscript) error
	Fetch(ctx context.Context, suite core.Suite) ([]*PVSSTranscript, error)
}

// DirExchange is an Exchange over a shared directory, one file per dealer.
type DirExchange struct{ dir string }

func NewDirExchange(dir string) *DirExchange { return &DirExchange{dir: dir} }

func (d *DirExchange) pathFor(dealer int) string {
	return filepath.Join(d.dir, fmt.Sprintf("transcript-%d.json", dealer))
}

// Publish writes t atomically (tmp+rename).
func (d *DirExchange) Publish(_ context.Context, t *PVSSTranscript) error {
	b, err := EncodeTranscript(t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	path := d.pathFor(t.Dealer)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Fetch decodes every transcript file present. Undecodable files are skipped.
func (d *DirExchange) Fetch(ctx context.Context, suite core.Suite) ([]*PVSSTranscript, error) {
	paths, err := filepath.Glob(filepath.Join(d.dir, "transcript-*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "list transcripts")
	}
	sort.Strings(paths)
	out := make([]*PVSSTranscript, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		t, err := DecodeTranscript(suite, b)
		if err != nil {
			logger.WarnJ("tdkg_exchange", map[string]any{"file": filepath.Base(p), "err": err.Error()})
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
