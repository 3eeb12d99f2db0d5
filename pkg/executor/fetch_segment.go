package executor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/objectstore"
	"github.com/stewart-y/photopipeline/pkg/state"
)

// FetchSegment is the NEW executor: download the source image, verify
// its hash, upload the original, then call the Segmenter (spec §4.5).
type FetchSegment struct {
	Deps *Deps
}

func (e *FetchSegment) IsHealthy() bool { return e.Deps.Segmenter != nil }

func (e *FetchSegment) Execute(ctx context.Context, job state.Job) (state.Status, state.Updates, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.SourceURL, nil)
	if err != nil {
		return "", state.Updates{}, errx.Wrap(errx.InvalidImage, "build source request", err)
	}
	resp, err := e.Deps.httpClient().Do(req)
	if err != nil {
		return "", state.Updates{}, errx.Wrap(errx.Timeout, "fetch source image", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", state.Updates{}, errx.New(errx.InvalidImage, "source image fetch returned non-200 status")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", state.Updates{}, errx.Wrap(errx.InvalidImage, "read source image body", err)
	}

	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != job.ImageHash {
		return "", state.Updates{}, errx.New(errx.InvalidImage, "source image does not match image_hash")
	}

	originalKey := objectstore.OriginalKey(job.SKU, job.ImageHash)
	if err := e.Deps.Objects.Put(ctx, originalKey, bytes.NewReader(body)); err != nil {
		return "", state.Updates{}, errx.Wrap(errx.StorageFailed, "upload original image", err)
	}

	result, err := e.Deps.Segmenter.RemoveBackground(ctx, job.SourceURL, job.SKU, job.ImageHash)
	if err != nil {
		if classified := errx.As(err); classified != errx.Unknown {
			return "", state.Updates{}, err
		}
		return "", state.Updates{}, errx.Wrap(errx.SegmentFailed, "remove background", err)
	}

	elapsed := time.Since(start).Milliseconds()
	updates := state.Updates{
		OriginalKey:    &originalKey,
		CutoutKey:      &result.CutoutKey,
		MaskKey:        &result.MaskKey,
		CostDelta:      result.CostUSD,
		StepName:       "fetch_segment",
		StepElapsedMs:  elapsed,
	}
	return state.StatusBGRemoved, updates, nil
}
