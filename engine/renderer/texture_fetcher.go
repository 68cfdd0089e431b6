package renderer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-render/common"
)

// MaxTextureDownloadSize bounds the number of bytes read from a texture URL.
const MaxTextureDownloadSize = 256 << 20

// fetchTextures downloads and decodes the request textures on the fetch pool. Results keep the order of
// textures; the first failure by index is returned.
//
// Parameters:
//   - ctx: bounds every download together with the per-texture fetch timeout
//   - textures: the request textures
//
// Returns:
//   - []common.TextureStagingData: decoded RGBA data, one entry per texture
//   - error: error if any texture could not be fetched or decoded
func (r *renderContext) fetchTextures(ctx context.Context, textures []Texture) ([]common.TextureStagingData, error) {
	if len(textures) == 0 {
		return nil, nil
	}

	results := make([]common.TextureStagingData, len(textures))
	errs := make([]error, len(textures))

	// The pool's own Wait blocks until workers go idle, so a WaitGroup is the barrier.
	var wg sync.WaitGroup
	for i, tex := range textures {
		wg.Add(1)
		id := i
		t := tex
		r.fetchPool.SubmitTask(worker.Task{
			ID:      id,
			Payload: t.URL,
			Do: func() (result any, err error) {
				defer wg.Done()
				defer func() {
					if p := recover(); p != nil {
						err = fmt.Errorf("panic while decoding: %v", p)
						errs[id] = err
					}
				}()

				staged, err := r.loadTexture(ctx, id, t)
				if err != nil {
					errs[id] = err
					return nil, err
				}
				results[id] = staged
				return nil, nil
			},
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("texture %d: %w", i, err)
		}
	}
	return results, nil
}

// loadTexture resolves one texture to decoded pixels.
func (r *renderContext) loadTexture(ctx context.Context, index int, t Texture) (common.TextureStagingData, error) {
	data := t.Data
	if len(data) == 0 {
		if t.URL == "" {
			return common.TextureStagingData{}, fmt.Errorf("texture has neither data nor url")
		}
		fetched, err := r.download(ctx, t.URL)
		if err != nil {
			return common.TextureStagingData{}, err
		}
		data = fetched
	}

	imported := &common.ImportedTexture{
		Name: fmt.Sprintf("texture%d", index),
		Data: data,
	}
	return imported.Decode()
}

// download fetches a texture URL under the configured fetch timeout.
func (r *renderContext) download(ctx context.Context, url string) ([]byte, error) {
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid texture url %q: %w", url, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxTextureDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(data) > MaxTextureDownloadSize {
		return nil, fmt.Errorf("texture %s exceeds %d bytes", url, MaxTextureDownloadSize)
	}
	return data, nil
}
