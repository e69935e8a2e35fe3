package barcode

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
)

const (
	DefaultImageWidth  = 300
	DefaultImageHeight = 100
)

// Render encodes code as a Code128 PNG scaled to width x height. Sizes below
// the symbol's natural width are widened to fit. Safe for concurrent use.
func Render(code string, width, height int) ([]byte, error) {
	if !Valid(code) {
		return nil, fmt.Errorf("invalid barcode %q", code)
	}
	if width <= 0 {
		width = DefaultImageWidth
	}
	if height <= 0 {
		height = DefaultImageHeight
	}

	symbol, err := code128.Encode(code)
	if err != nil {
		return nil, fmt.Errorf("encode code128: %w", err)
	}
	if natural := symbol.Bounds().Dx(); width < natural {
		width = natural
	}

	scaled, err := barcode.Scale(symbol, width, height)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
