// Package storage processes uploaded profile pictures and persists them on
// local disk or in an S3 bucket.
package storage

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// PictureSize is the bounding box uploaded pictures are scaled into
const PictureSize = 125

// MaxPicturePixels bounds the decoded size of an upload. A few kilobytes of
// compressed png can describe a far larger bitmap than the body limit suggests.
const MaxPicturePixels = 25_000_000

var ErrUnsupportedImage = errors.New("unsupported image")

// Picture is a processed upload ready to be stored
type Picture struct {
	Name        string
	ContentType string
	Data        []byte
}

// ProcessPicture decodes a jpeg or png upload, scales it to fit the
// PictureSize box keeping its aspect ratio, and re-encodes it in its own
// format under a random name that keeps the original extension.
func ProcessPicture(filename string, data []byte) (*Picture, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxPicturePixels/cfg.Height {
		return nil, fmt.Errorf("%w: %dx%d is too large", ErrUnsupportedImage, cfg.Width, cfg.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	dst := image.NewRGBA(fitBox(src.Bounds(), PictureSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	var contentType string
	switch format {
	case "jpeg":
		contentType = "image/jpeg"
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
	case "png":
		contentType = "image/png"
		err = png.Encode(&buf, dst)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode picture: %w", err)
	}

	name, err := randomName(filename)
	if err != nil {
		return nil, err
	}

	return &Picture{Name: name, ContentType: contentType, Data: buf.Bytes()}, nil
}

// fitBox returns the destination rectangle for scaling b into a size x size
// box. Images already inside the box keep their dimensions.
func fitBox(b image.Rectangle, size int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w <= size && h <= size {
		return image.Rect(0, 0, w, h)
	}
	if w >= h {
		h = max(1, h*size/w)
		w = size
	} else {
		w = max(1, w*size/h)
		h = size
	}
	return image.Rect(0, 0, w, h)
}

func randomName(filename string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate picture name: %w", err)
	}
	return hex.EncodeToString(b) + strings.ToLower(filepath.Ext(filename)), nil
}
