// Copyright 2026 Dominik Schlosser
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qr

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"
)

// QuietZone is the light border, in modules, around every encoded symbol.
const QuietZone = 4

// ErrPayloadTooLarge is returned when a payload exceeds the capacity of the
// largest QR version at the fixed error correction level.
var ErrPayloadTooLarge = errors.New("payload too large for a QR code")

// ErrEmptyPayload is returned when encoding an empty string.
var ErrEmptyPayload = errors.New("empty QR payload")

// Bitmap is an encoded QR symbol, quiet zone included, one cell per module.
type Bitmap struct {
	Size    int
	modules []bool
}

// Get reports whether the module at (x, y) is dark. Out-of-range
// coordinates are light.
func (b *Bitmap) Get(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Size || y >= b.Size {
		return false
	}
	return b.modules[y*b.Size+x]
}

// Encode renders payload as a QR symbol at error correction level M. The
// result depends only on payload.
func Encode(payload string) (*Bitmap, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_M,
		gozxing.EncodeHintType_MARGIN:           QuietZone,
		gozxing.EncodeHintType_CHARACTER_SET:    "UTF-8",
	}

	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 0, 0, hints)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "too big") {
			return nil, fmt.Errorf("%w (%d bytes)", ErrPayloadTooLarge, len(payload))
		}
		return nil, fmt.Errorf("encoding QR code: %w", err)
	}

	size := matrix.GetWidth()
	bm := &Bitmap{Size: size, modules: make([]bool, size*size)}
	for y := 0; y < size && y < matrix.GetHeight(); y++ {
		for x := 0; x < size; x++ {
			bm.modules[y*size+x] = matrix.Get(x, y)
		}
	}
	return bm, nil
}

// Image renders the bitmap with each module drawn as a scale x scale square.
func (b *Bitmap) Image(scale int) image.Image {
	if scale < 1 {
		scale = 1
	}
	img := image.NewGray(image.Rect(0, 0, b.Size*scale, b.Size*scale))
	for y := 0; y < b.Size*scale; y++ {
		for x := 0; x < b.Size*scale; x++ {
			c := color.Gray{Y: 0xff}
			if b.Get(x/scale, y/scale) {
				c = color.Gray{Y: 0}
			}
			img.SetGray(x, y, c)
		}
	}
	return img
}

// WritePNG writes the bitmap to w as a PNG image.
func (b *Bitmap) WritePNG(w io.Writer, scale int) error {
	return png.Encode(w, b.Image(scale))
}

// Terminal renders the bitmap as text, two module rows per line, using
// half-block characters.
func (b *Bitmap) Terminal() string {
	var sb strings.Builder
	for y := 0; y < b.Size; y += 2 {
		for x := 0; x < b.Size; x++ {
			top, bottom := b.Get(x, y), b.Get(x, y+1)
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
