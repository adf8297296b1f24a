package translate

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"rlm-translate/internal/logging"
	"rlm-translate/internal/textutil"
)

// FileResult pairs one input path with its outcome. Err covers failures that
// prevented a session from running at all, such as an unreadable file.
type FileResult struct {
	Path   string
	Result *Result
	Err    error
}

// TranslateFile reads and decodes a file, then translates its content.
// Non-UTF-8 input is transcoded through the usual codepage fallbacks.
func (t *Translator) TranslateFile(ctx context.Context, path string, req Request) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	text, encoding, err := textutil.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if encoding != "utf-8" {
		t.log.Info("input transcoded", "path", path, "encoding", encoding)
	}
	req.Text = text
	return t.Translate(ctx, req)
}

// TranslateFiles translates distinct documents in parallel. Each document
// runs in its own session with its own gateway so cost summaries and
// glossary learning stay per-document; the preset manager and chunk cache
// are shared. Per-document failures are reported in the slice, not as the
// returned error, which is reserved for cancellation.
func (t *Translator) TranslateFiles(ctx context.Context, paths []string, req Request, workers int) ([]FileResult, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]FileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			res, err := t.translateOneFile(gctx, path, req)
			results[i] = FileResult{Path: path, Result: res, Err: err}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// translateOneFile builds an isolated session for one document of a batch.
func (t *Translator) translateOneFile(ctx context.Context, path string, req Request) (*Result, error) {
	gw, err := t.newGateway()
	if err != nil {
		return nil, err
	}
	session := &Translator{
		cfg:        t.cfg,
		gateway:    gw,
		presets:    t.presets,
		store:      t.store,
		observer:   t.observer,
		log:        t.log.WithRunID(logging.NewRunID()),
		newGateway: t.newGateway,
	}
	return session.TranslateFile(ctx, path, req)
}
