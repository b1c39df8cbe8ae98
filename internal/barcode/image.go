package barcode

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/gen2brain/heic"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// DecodeImage decodes receipt image bytes into an image.Image. HEIC/HEIF
// (common on iPhones) is handled separately because the stdlib image
// registry has no decoder for it.
func DecodeImage(data []byte) (image.Image, error) {
	if isHEIC(data) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC image: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEIC sniffs the ISO-BMFF ftyp box for HEIC/HEIF brands.
func isHEIC(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if !bytes.Equal(data[4:8], []byte("ftyp")) {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}

// grayscale converts an image to 8-bit gray, which is what the binarizer
// wants and makes polarity inversion a byte flip.
func grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

// invert flips the polarity of a gray image. Thermal receipts are often
// photographed white-on-dark, which defeats a straight binarizer.
func invert(src *image.Gray) *image.Gray {
	out := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		out.Pix[i] = 255 - p
	}
	return out
}
