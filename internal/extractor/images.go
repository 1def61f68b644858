package extractor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// minImageDim gates out icons/bullets/decorative images,
// matching the reference Go parser's 32px floor (stricter than spec's 20px
// "meaningful image" floor; extractor stays conservative and lets the
// vision describer apply the spec's exact meaningfulness threshold).
const minImageDim = 32

// extractPageText extracts a page's text ordered by visual position
// (top-to-bottom), grounded on bbiangul-go-reason's extractPageTextOrdered:
// content-stream text runs are grouped into lines by Y proximity, then the
// lines are sorted top-to-bottom since PDF content-stream order does not
// always follow visual layout.
func extractPageText(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0

	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	var parts []string
	for _, l := range lines {
		if text := strings.TrimSpace(l.buf.String()); text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// extractPageImages walks a page's XObject resources for embedded images,
// grounded on bbiangul-go-reason's extractPageImages/extractSingleImage.
// Images below minImageDim in either dimension are skipped as decorative,
// matching spec's "tiny/decorative images ... counted as skipped".
func extractPageImages(page pdf.Page) []Image {
	resources := page.Resources()
	if resources.IsNull() {
		return nil
	}
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil
	}

	var images []Image
	for _, name := range xobjects.Keys() {
		xobj := xobjects.Key(name)
		if xobj.Key("Subtype").Name() != "Image" {
			continue
		}
		if xobj.Key("ImageMask").Bool() {
			continue
		}

		width := int(xobj.Key("Width").Int64())
		height := int(xobj.Key("Height").Int64())
		if width == 0 || height == 0 || width < minImageDim || height < minImageDim {
			continue
		}

		filter := xobj.Key("Filter").Name()
		data, mimeType := decodeImage(xobj, filter, width, height, name)
		if data == nil {
			continue
		}

		images = append(images, Image{
			Data:     data,
			MIMEType: mimeType,
			Width:    width,
			Height:   height,
			Rect:     imageRect(page, name),
		})
	}

	return images
}

// imageRect attempts to resolve an image's bounding box on the page. The
// low-level XObject accessor this package relies on does not expose content
// stream placement matrices the way PyMuPDF's get_image_rects does, so this
// always returns nil; callers must handle a missing rect, matching the
// extractor's documented open-question gap.
func imageRect(_ pdf.Page, _ string) *Rect {
	return nil
}

// decodeImage reads image bytes from a PDF XObject, handling panics the
// underlying library can raise on unsupported filter/colorspace
// combinations, grounded on extractSingleImage.
func decodeImage(xobj pdf.Value, filter string, width, height int, name string) (data []byte, mimeType string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("extractor: panic reading image stream, skipping", "name", name, "panic", r)
			data = nil
			mimeType = ""
		}
	}()

	switch filter {
	case "DCTDecode":
		raw, err := readRawStreamBytes(xobj)
		if err != nil {
			slog.Debug("extractor: failed to read raw JPEG stream", "name", name, "error", err)
			return nil, ""
		}
		if len(raw) > 2 && raw[0] == 0xff && raw[1] == 0xd8 {
			return raw, "image/jpeg"
		}
		slog.Debug("extractor: DCTDecode image missing JPEG magic", "name", name)
		return nil, ""

	case "FlateDecode", "":
		rc := xobj.Reader()
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			slog.Debug("extractor: failed to read FlateDecode image", "name", name, "error", err)
			return nil, ""
		}
		pngData, err := rawPixelsToPNG(raw, width, height, xobj.Key("ColorSpace").Name(), int(xobj.Key("BitsPerComponent").Int64()))
		if err != nil {
			slog.Debug("extractor: failed to encode PNG", "name", name, "error", err)
			return nil, ""
		}
		return pngData, "image/png"

	default:
		slog.Debug("extractor: unsupported image filter", "name", name, "filter", filter)
		return nil, ""
	}
}

// readRawStreamBytes reads the raw (unfiltered) stream bytes from a
// pdf.Value via the library's unexported fields. Necessary because
// Value.Reader() applies the filter chain and panics on DCTDecode, but for
// JPEG streams the raw bytes already are valid JPEG data.
//
// Internal layout relied on (github.com/ledongthuc/pdf):
//
//	Value  { r *Reader; ptr objptr; data interface{} }
//	stream { hdr dict; ptr objptr; offset int64 }
//	Reader { f io.ReaderAt; ... }
func readRawStreamBytes(v pdf.Value) ([]byte, error) {
	length := v.Key("Length").Int64()
	if length <= 0 {
		return nil, errNoStreamLength
	}

	val := reflect.ValueOf(v)

	dataField := val.Field(2)
	if dataField.IsNil() {
		return nil, errNilStreamData
	}
	streamVal := dataField.Elem()
	if streamVal.Kind() == reflect.Ptr {
		streamVal = streamVal.Elem()
	}

	offsetField := streamVal.Field(2)
	offset := offsetField.Int()

	rField := val.Field(0)
	if rField.IsNil() {
		return nil, errNilReader
	}
	readerStruct := reflect.NewAt(rField.Type().Elem(), rField.UnsafePointer()).Elem()
	fField := readerStruct.Field(0)
	readerAt, ok := fField.Interface().(io.ReaderAt)
	if !ok {
		return nil, errNotReaderAt
	}

	buf := make([]byte, length)
	n, err := readerAt.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// rawPixelsToPNG re-encodes raw decompressed pixel data as PNG.
func rawPixelsToPNG(data []byte, width, height int, colorSpace string, bitsPerComponent int) ([]byte, error) {
	if bitsPerComponent == 0 {
		bitsPerComponent = 8
	}

	var img image.Image
	switch colorSpace {
	case "DeviceRGB", "":
		expected := width * height * 3
		if len(data) < expected {
			return nil, errInsufficientImageData
		}
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				off := (y*width + x) * 3
				rgba.SetRGBA(x, y, color.RGBA{R: data[off], G: data[off+1], B: data[off+2], A: 255})
			}
		}
		img = rgba

	case "DeviceGray":
		expected := width * height
		if len(data) < expected {
			return nil, errInsufficientImageData
		}
		gray := image.NewGray(image.Rect(0, 0, width, height))
		copy(gray.Pix, data[:expected])
		img = gray

	case "DeviceCMYK":
		expected := width * height * 4
		if len(data) < expected {
			return nil, errInsufficientImageData
		}
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				off := (y*width + x) * 4
				c, m, ye, k := data[off], data[off+1], data[off+2], data[off+3]
				r := 255 - min(255, int(c)+int(k))
				g := 255 - min(255, int(m)+int(k))
				b := 255 - min(255, int(ye)+int(k))
				rgba.SetRGBA(x, y, color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255})
			}
		}
		img = rgba

	default:
		return nil, errUnsupportedColorSpace
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
