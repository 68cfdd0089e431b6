package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/dispatcher"
	"github.com/chai2010/webp"
)

const (
	mimeWebP = "image/webp"
	mimePNG  = "image/png"
)

func (s *server) handleRender(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	job, err := decodeJSONRequest(w, r, s.maxJSONSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.render(w, r, job, start)
}

func (s *server) handleRenderForm(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	job, err := decodeFormRequest(w, r, s.maxFormSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.render(w, r, job, start)
}

// render runs the job and writes the encoded image.
func (s *server) render(w http.ResponseWriter, r *http.Request, job dispatcher.RenderJob, start time.Time) {
	img, err := s.renderer.Render(r.Context(), job)
	if err != nil {
		s.writeError(w, err)
		return
	}

	body, mime, err := s.encode(img, r.Header.Get("Accept"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Infof("job %s: time overall: %v", job.ID, time.Since(start))

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// encode writes img as lossless WebP when accept lists image/webp, and as PNG otherwise.
//
// Parameters:
//   - img: the rendered image
//   - accept: the request's Accept header
//
// Returns:
//   - []byte: the encoded image
//   - string: its content type
//   - error: error if encoding fails
func (s *server) encode(img *image.RGBA, accept string) ([]byte, string, error) {
	var buf bytes.Buffer
	if strings.Contains(accept, mimeWebP) {
		start := time.Now()
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
			return nil, "", err
		}
		s.logger.Infof("time webp: %v", time.Since(start))
		return buf.Bytes(), mimeWebP, nil
	}

	if err := png.Encode(&buf, img); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mimePNG, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error to its HTTP status. Render failures and anything unclassified are 500.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var failure *common.RenderFailure
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case common.IsRequestError(err):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrQueueFull), errors.Is(err, common.ErrDispatcherClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &failure):
		// A render that timed out on a download is still a render failure.
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client gave up while waiting for admission.
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorf("request failed (%d): %v", status, err)
	} else {
		s.logger.Infof("request rejected (%d): %v", status, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}
