package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
)

// texturePrefix marks multipart parts carrying a texture.
const texturePrefix = "texture"

// renderRequest is the JSON body of POST /render. Pointers tell missing fields from zero values.
type renderRequest struct {
	Model    *string  `json:"model"`
	Textures []string `json:"textures"`
	// TextureURLs is accepted as an alias of Textures and appended after it.
	TextureURLs []string `json:"texture_urls"`
	Width       *uint32  `json:"width"`
	Height      *uint32  `json:"height"`
}

// decodeJSONRequest parses a JSON render request.
//
// Parameters:
//   - w: the response writer, which MaxBytesReader uses to close the connection on an oversized body
//   - r: the HTTP request
//   - limit: the largest accepted body in bytes
//
// Returns:
//   - dispatcher.RenderJob: the job
//   - error: a *common.MissingFieldError or *common.ParseError, wrapping *http.MaxBytesError for an oversized body
func decodeJSONRequest(w http.ResponseWriter, r *http.Request, limit int64) (dispatcher.RenderJob, error) {
	var body renderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(&body); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return dispatcher.RenderJob{}, &common.ParseError{Field: typeErr.Field, Err: err}
		}
		return dispatcher.RenderJob{}, &common.ParseError{Field: "body", Err: err}
	}

	if body.Model == nil || *body.Model == "" {
		return dispatcher.RenderJob{}, &common.MissingFieldError{Field: "model"}
	}
	if body.Width == nil {
		return dispatcher.RenderJob{}, &common.MissingFieldError{Field: "width"}
	}
	if body.Height == nil {
		return dispatcher.RenderJob{}, &common.MissingFieldError{Field: "height"}
	}

	req := renderer.Request{
		Model:  *body.Model,
		Width:  *body.Width,
		Height: *body.Height,
	}
	for _, url := range slices.Concat(body.Textures, body.TextureURLs) {
		req.Textures = append(req.Textures, renderer.Texture{URL: url})
	}
	if err := checkSize(req); err != nil {
		return dispatcher.RenderJob{}, err
	}
	return dispatcher.NewRenderJob(req), nil
}

// namedTexture is a texture part with the field name it arrived under.
type namedTexture struct {
	name    string
	texture renderer.Texture
}

// decodeFormRequest parses a multipart render request. Parts named model, width and height carry the
// scalar fields; every part whose name starts with "texture" is a texture: uploaded files as raw bytes,
// plain values as URLs. Textures are ordered by field name, numerically when the suffix is a number.
//
// Parameters:
//   - w: the response writer, which MaxBytesReader uses to close the connection on an oversized body
//   - r: the HTTP request
//   - limit: the largest accepted body in bytes
//
// Returns:
//   - dispatcher.RenderJob: the job
//   - error: a *common.MissingFieldError or *common.ParseError, wrapping *http.MaxBytesError for an oversized body
func decodeFormRequest(w http.ResponseWriter, r *http.Request, limit int64) (dispatcher.RenderJob, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	mr, err := r.MultipartReader()
	if err != nil {
		return dispatcher.RenderJob{}, &common.ParseError{Field: "body", Err: err}
	}

	fields := make(map[string]string)
	var textures []namedTexture
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return dispatcher.RenderJob{}, &common.ParseError{Field: "body", Err: err}
		}

		name := part.FormName()
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return dispatcher.RenderJob{}, &common.ParseError{Field: name, Err: err}
		}

		switch {
		case strings.HasPrefix(name, texturePrefix) && part.FileName() != "":
			textures = append(textures, namedTexture{name: name, texture: renderer.Texture{Data: data}})
		case strings.HasPrefix(name, texturePrefix):
			if url := strings.TrimSpace(string(data)); url != "" {
				textures = append(textures, namedTexture{name: name, texture: renderer.Texture{URL: url}})
			}
		default:
			fields[name] = strings.TrimSpace(string(data))
		}
	}

	model, ok := fields["model"]
	if !ok || model == "" {
		return dispatcher.RenderJob{}, &common.MissingFieldError{Field: "model"}
	}
	width, err := parseDimension(fields, "width")
	if err != nil {
		return dispatcher.RenderJob{}, err
	}
	height, err := parseDimension(fields, "height")
	if err != nil {
		return dispatcher.RenderJob{}, err
	}

	slices.SortStableFunc(textures, func(a, b namedTexture) int {
		return compareTextureNames(a.name, b.name)
	})

	req := renderer.Request{Model: model, Width: width, Height: height}
	for _, t := range textures {
		req.Textures = append(req.Textures, t.texture)
	}
	if err := checkSize(req); err != nil {
		return dispatcher.RenderJob{}, err
	}
	return dispatcher.NewRenderJob(req), nil
}

// parseDimension reads a required unsigned 32-bit form field.
func parseDimension(fields map[string]string, name string) (uint32, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, &common.MissingFieldError{Field: name}
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, &common.ParseError{Field: name, Err: err}
	}
	return uint32(v), nil
}

// compareTextureNames orders "texture2" before "texture10".
func compareTextureNames(a, b string) int {
	ai, aerr := strconv.Atoi(strings.TrimPrefix(a, texturePrefix))
	bi, berr := strconv.Atoi(strings.TrimPrefix(b, texturePrefix))
	switch {
	case aerr == nil && berr == nil:
		return ai - bi
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// checkSize rejects output sizes the renderer would refuse, before the job reaches the dispatcher.
func checkSize(req renderer.Request) error {
	for _, f := range []struct {
		name  string
		value uint32
	}{{"width", req.Width}, {"height", req.Height}} {
		if f.value == 0 || f.value > renderer.MaxImageSize {
			return &common.ParseError{Field: f.name, Err: fmt.Errorf("must be between 1 and %d, got %d", renderer.MaxImageSize, f.value)}
		}
	}
	return nil
}
