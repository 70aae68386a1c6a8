package pageimage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/praxis-ed/curio/internal/domain"
)

// maxCropDim bounds the longer edge of a crop before it is sent to the
// vision model; larger crops only burn tokens.
const maxCropDim = 1024

// CropRegion cuts a bounding-box region out of a page raster. The box is in
// PDF point space with either coordinate origin; pageHeightPts drives both
// the origin flip and the point-to-pixel scale. A non-positive pageHeightPts
// treats the box as already being in pixel space.
func CropRegion(img image.Image, bbox domain.BoundingBox, pageHeightPts float64) (image.Image, error) {
	bounds := img.Bounds()
	if pageHeightPts <= 0 {
		pageHeightPts = float64(bounds.Dy())
	}
	scale := float64(bounds.Dy()) / pageHeightPts

	norm := bbox.Normalized(pageHeightPts)
	rect := image.Rect(
		bounds.Min.X+int(norm.L*scale),
		bounds.Min.Y+int(norm.T*scale),
		bounds.Min.X+int(norm.R*scale),
		bounds.Min.Y+int(norm.B*scale),
	).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("bounding box %+v falls outside the page raster", bbox)
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return shrinkToFit(out), nil
}

func shrinkToFit(img *image.RGBA) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxCropDim && h <= maxCropDim {
		return img
	}

	ratio := float64(maxCropDim) / float64(w)
	if h > w {
		ratio = float64(maxCropDim) / float64(h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*ratio), int(float64(h)*ratio)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodePNG renders an image to PNG bytes for the vision API.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG renders an image to JPEG bytes. Page-sized images go out as
// JPEG to keep the payload small.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
