package ocr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"regexp"
	"strconv"

	_ "image/jpeg" // page images are usually PNG but submissions may be JPEG
)

// OCR models interpret currency like $45.2M as opening inline LaTeX,
// emitting \(45.2M in one table cell and \)12.8M in the next. Real LaTeX
// keeps its delimiters paired around math, so only delimiters directly
// before digits, commas, or periods (or a closing one before markup) are
// currency signs.
var (
	latexOpenCurrency  = regexp.MustCompile(`\\\(([\d,.])`)
	latexCloseCurrency = regexp.MustCompile(`\\\)([\d,.])`)
	latexCloseMarkup   = regexp.MustCompile(`\\\)(\s*<)`)
)

// FixLatexDelimiters rewrites stray LaTeX math delimiters around currency
// back into dollar signs.
func FixLatexDelimiters(text string) string {
	text = latexOpenCurrency.ReplaceAllString(text, "$$$1")
	text = latexCloseCurrency.ReplaceAllString(text, "$$$1")
	text = latexCloseMarkup.ReplaceAllString(text, "$$$1")
	return text
}

// imgPlaceholder matches the placeholder tags the hosted model emits for
// figures it detected, with the bounding box encoded in the filename:
// <img src="imgs/img_in_image_box_X1_Y1_X2_Y2.jpg">.
var imgPlaceholder = regexp.MustCompile(`<img\s+src="imgs/img[^"]*?_(\d+)_(\d+)_(\d+)_(\d+)\.\w+"[^>]*>`)

// InlineCroppedImages replaces figure placeholder tags with base64 data URIs
// cropped from the original page image. Placeholders with bounds outside the
// page or degenerate boxes are left untouched. Matches are replaced
// back-to-front so earlier indexes stay valid.
func InlineCroppedImages(text string, page []byte) string {
	matches := imgPlaceholder.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	img, _, err := image.Decode(bytes.NewReader(page))
	if err != nil {
		return text
	}

	cropper, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return text
	}
	bounds := img.Bounds()

	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		x1 := clamp(atoi(text[m[2]:m[3]]), bounds.Min.X, bounds.Max.X)
		y1 := clamp(atoi(text[m[4]:m[5]]), bounds.Min.Y, bounds.Max.Y)
		x2 := clamp(atoi(text[m[6]:m[7]]), bounds.Min.X, bounds.Max.X)
		y2 := clamp(atoi(text[m[8]:m[9]]), bounds.Min.Y, bounds.Max.Y)
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, cropper.SubImage(image.Rect(x1, y1, x2, y2))); err != nil {
			continue
		}

		replacement := fmt.Sprintf(
			`<img src="data:image/png;base64,%s" alt="extracted image (%d,%d)-(%d,%d)" />`,
			base64.StdEncoding.EncodeToString(buf.Bytes()), x1, y1, x2, y2,
		)
		text = text[:m[0]] + replacement + text[m[1]:]
	}
	return text
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
