package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	_ "image/png" // register PNG decoder
)

// DefaultArtworkSize is the edge length the catalog artwork URL is rewritten
// to and the largest edge stored on disk.
const DefaultArtworkSize = 600

const artworkQuality = 90

// Artwork600 rewrites a catalog 100x100 artwork URL to its 600x600 variant.
func Artwork600(url string) string {
	return ArtworkURL(url, DefaultArtworkSize)
}

// ArtworkURL rewrites the 100x100bb size token of a catalog artwork URL to
// size x size. URLs without the token are returned unchanged.
func ArtworkURL(url string, size int) string {
	s := strconv.Itoa(size)
	return strings.ReplaceAll(url, "100x100bb", s+"x"+s+"bb")
}

// Image format names as reported by image.Decode.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"
	FormatBMP  = "bmp"
)

// DetectFormat reads the first bytes from r to identify the image format.
// The returned reader replays the consumed bytes.
func DetectFormat(r io.Reader) (format string, replay io.Reader, err error) {
	buf := make([]byte, 12)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("reading header: %w", err)
	}
	buf = buf[:n]
	replay = io.MultiReader(bytes.NewReader(buf), r)

	switch {
	case n >= 3 && buf[0] == 0xFF && buf[1] == 0xD8 && buf[2] == 0xFF:
		return FormatJPEG, replay, nil
	case n >= 8 && string(buf[:8]) == "\x89PNG\r\n\x1a\n":
		return FormatPNG, replay, nil
	case n >= 12 && string(buf[:4]) == "RIFF" && string(buf[8:12]) == "WEBP":
		return FormatWebP, replay, nil
	case n >= 2 && string(buf[:2]) == "BM":
		return FormatBMP, replay, nil
	}
	return "", replay, fmt.Errorf("unrecognized image format")
}

// PrepareArtwork validates downloaded artwork and returns JPEG bytes whose
// longest edge is at most maxEdge. A JPEG that already fits is returned
// unchanged; anything else is decoded, scaled and re-encoded.
func PrepareArtwork(data []byte, maxEdge int) ([]byte, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultArtworkSize
	}

	format, replay, err := DetectFormat(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("detecting format: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image config: %w", err)
	}
	newW, newH := fitDimensions(cfg.Width, cfg.Height, maxEdge, maxEdge)
	if format == FormatJPEG && newW == cfg.Width && newH == cfg.Height {
		return data, nil
	}

	img, _, err := image.Decode(replay)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	// JPEG has no alpha; flatten onto white first.
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: artworkQuality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fitDimensions calculates the scaled dimensions that fit within maxW x maxH
// while preserving the aspect ratio. If the image already fits, returns original dimensions.
func fitDimensions(origW, origH, maxW, maxH int) (int, int) {
	if origW <= maxW && origH <= maxH {
		return origW, origH
	}

	ratio := math.Min(float64(maxW)/float64(origW), float64(maxH)/float64(origH))
	newW := max(int(math.Round(float64(origW)*ratio)), 1)
	newH := max(int(math.Round(float64(origH)*ratio)), 1)
	return newW, newH
}
