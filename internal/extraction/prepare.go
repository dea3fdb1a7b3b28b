package extraction

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"github.com/gen2brain/heic"
)

// prepareImage returns bytes and a format the model accepts. HEIC and HEIF
// photos are re-encoded as PNG; other formats pass through.
func prepareImage(data []byte, mime string) ([]byte, string, error) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch mime {
	case "image/jpeg", "image/jpg":
		return data, "jpeg", nil
	case "image/png":
		return data, "png", nil
	case "image/webp":
		return data, "webp", nil
	case "image/heic", "image/heif":
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decoding %s image: %w", mime, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("encoding png: %w", err)
		}
		return buf.Bytes(), "png", nil
	default:
		return nil, "", fmt.Errorf("unsupported image type %q", mime)
	}
}
