package translate

import (
	"context"
	"fmt"
	"strings"

	"rlm-translate/internal/chunking"
	"rlm-translate/internal/preset"
	"rlm-translate/internal/state"
	"rlm-translate/internal/textutil"
	"rlm-translate/internal/translator"
)

// srtParseFailure is the message reported when the input claims to be SRT
// but yields no cues.
const srtParseFailure = "Failed to parse SRT file"

// translateSRT handles subtitle files cue by cue. Cues are batched, each
// batch is translated in one call with a separator the model is told to
// keep, and the translated lines are written back onto the original
// timestamps. Batches skip the verification loop; cue lines are too short
// for the sentence and length heuristics to mean anything.
func (t *Translator) translateSRT(ctx context.Context, text, source, target, key string, pre *preset.Preset, req Request) (*Result, error) {
	t.progress("Parsing SRT subtitles", 0)

	cues, err := textutil.ParseSRT(text)
	if err != nil || len(cues) == 0 {
		if err != nil {
			t.log.Warn("srt parse failed", "error", err)
		}
		return &Result{
			Success:        false,
			TranslatedText: text,
			SourceLang:     source,
			TargetLang:     target,
			Glossary:       map[string]string{},
			PresetUsed:     key,
			ErrorMessage:   srtParseFailure,
		}, nil
	}

	total := len(cues)
	t.progress(fmt.Sprintf("Translating %d subtitle entries", total), 0)

	batchSize := t.cfg.Engine.SubtitleBatchSize
	if batchSize <= 0 {
		batchSize = chunking.DefaultCueBatchSize
	}
	batches := chunking.NewChunker(pre.ChunkSize, 0).BatchCues(cues, batchSize)

	st := state.New(state.PresetSubtitle)
	if req.Style != nil {
		st.Style = *req.Style
	}
	for src, tgt := range req.Glossary {
		st.AddHardTerm(src, tgt)
	}
	sub := translator.New(t.gateway, pre, target, t.log)

	out := make([]textutil.Cue, total)
	copy(out, cues)

	var (
		failed    int
		cacheHits int
		cancelErr error
	)
	for b, batch := range batches {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}

		first := b*batchSize + 1
		last := min(first+batchSize-1, total)
		t.progress(fmt.Sprintf("Subtitles %d-%d/%d", first, last, total), float64(b)/float64(len(batches)))

		translated, hit := t.cachedBatch(ctx, pre, source, target, batch.Text)
		if hit {
			cacheHits++
		} else {
			res, terr := sub.Translate(ctx, batch.Text, b, st)
			if terr != nil {
				failed++
				t.log.Warn("subtitle batch failed", "batch", b, "error", terr)
				continue
			}
			translated = res.Translation
			t.putCache(ctx, pre, source, target, batch.Text, translated)
		}

		st.AddChunk(batch.Text, translated)
		applyCueBatch(out, translated, b*batchSize, batchSize)
	}

	summary := t.gateway.Costs()
	summary.SubCalls += cacheHits
	summary.TotalCalls += cacheHits

	result := &Result{
		Success:        failed == 0 && cancelErr == nil,
		TranslatedText: textutil.FormatSRT(out),
		SourceLang:     source,
		TargetLang:     target,
		ChunksCount:    total,
		Glossary:       st.ExportGlossary(),
		CostSummary:    summary,
		PresetUsed:     key,
	}
	switch {
	case cancelErr != nil:
		result.ErrorMessage = cancelErr.Error()
		return result, cancelErr
	case failed > 0:
		result.ErrorMessage = fmt.Sprintf("%d of %d subtitle batches failed", failed, len(batches))
	}

	t.progress("Translation complete", 1)
	t.log.Info("subtitle session finished",
		"cues", total, "batches", len(batches), "failed", failed, "cache_hits", cacheHits)
	return result, nil
}

// cachedBatch looks a batch up in the chunk cache.
func (t *Translator) cachedBatch(ctx context.Context, pre *preset.Preset, source, target, batchText string) (string, bool) {
	if t.store == nil {
		return "", false
	}
	translated, ok, err := t.store.Get(ctx, t.cacheKey(pre, source, target, batchText))
	if err != nil {
		t.log.Warn("cache lookup failed", "error", err)
		return "", false
	}
	return translated, ok
}

// applyCueBatch distributes one translated batch back onto its cues. When
// the model returns fewer parts than the batch held, the uncovered tail
// keeps its original text.
func applyCueBatch(out []textutil.Cue, translated string, start, batchSize int) {
	parts := strings.Split(translated, chunking.CueSeparator)
	for j, part := range parts {
		if j >= batchSize || start+j >= len(out) {
			break
		}
		if p := strings.TrimSpace(part); p != "" {
			out[start+j].Text = p
		}
	}
}
