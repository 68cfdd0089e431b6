package renderer

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

func TestMapReadback(t *testing.T) {
	errRejected := errors.New("rejected")

	tests := []struct {
		name    string
		mapErr  error
		report  bool
		status  wgpu.BufferMapAsyncStatus
		wantErr error
		fails   bool
	}{
		{name: "success", report: true, status: wgpu.BufferMapAsyncStatusSuccess},
		{name: "validation error", report: true, status: wgpu.BufferMapAsyncStatusValidationError, fails: true},
		{name: "callback never ran", fails: true},
		{name: "request rejected", mapErr: errRejected, wantErr: errRejected, fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pending wgpu.BufferMapCallback
			polled := false

			err := mapReadback(func(cb wgpu.BufferMapCallback) error {
				if tt.mapErr != nil {
					return tt.mapErr
				}
				pending = cb
				return nil
			}, func() {
				polled = true
				if tt.report {
					pending(tt.status)
				}
			})

			if (err != nil) != tt.fails {
				t.Fatalf("err = %v, fails = %v", err, tt.fails)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.mapErr != nil && polled {
				t.Error("device polled after a rejected map request")
			}
		})
	}
}

func TestUnpadRows(t *testing.T) {
	// 2x2 image, rows padded to 12 bytes.
	mapped := []byte{
		1, 2, 3, 4, 5, 6, 7, 8, 0xEE, 0xEE, 0xEE, 0xEE,
		9, 10, 11, 12, 13, 14, 15, 16, 0xEE, 0xEE, 0xEE, 0xEE,
	}

	img := unpadRows(mapped, 2, 2, 12)

	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("bounds %v", img.Bounds())
	}
	for i, want := range []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16} {
		if img.Pix[i] != want {
			t.Fatalf("pix[%d] = %d, want %d", i, img.Pix[i], want)
		}
	}
}
