package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// odfContentPath is the path to the main content inside an OpenDocument zip.
// Presentations (.odp) and spreadsheets (.ods) share the same layout.
const odfContentPath = "content.xml"

// odfText* match OpenDocument text elements (with optional attributes). Separate
// patterns keep opening and closing tags paired (e.g. <text:p>...</text:p> only).
var (
	odfTextP    = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	odfTextSpan = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	odfTextH    = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)
)

// extractODF extracts text from OpenDocument bytes (.odp slides, .ods cells).
// All text:p, text:span, and text:h elements are collected so slide bodies,
// cell contents, and headings are all searchable.
func extractODF(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract ODF: not a zip: %w", err)
	}
	var contentXML []byte
	for _, f := range zr.File {
		if f.Name != odfContentPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("extract ODF: open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return "", fmt.Errorf("extract ODF: read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		contentXML = buf.Bytes()
		break
	}
	if contentXML == nil {
		return "", fmt.Errorf("extract ODF: %s not found", odfContentPath)
	}
	s := string(contentXML)
	var b strings.Builder
	appendMatches := func(parts [][]string) {
		for _, p := range parts {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(p[1]))
		}
	}
	appendMatches(odfTextP.FindAllStringSubmatch(s, -1))
	appendMatches(odfTextSpan.FindAllStringSubmatch(s, -1))
	appendMatches(odfTextH.FindAllStringSubmatch(s, -1))
	return strings.TrimSpace(b.String()), nil
}
