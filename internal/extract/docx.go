package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultBodyPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// Override elements may list PartName and ContentType in either order.
	partNameFirst = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	typeFirst     = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

	paragraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>|<w:p/>`)
	textRunRe   = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	tableCellRe = regexp.MustCompile(`(?s)<w:tc[ >].*?</w:tc>`)
	tableRowRe  = regexp.MustCompile(`(?s)<w:tr[ >].*?</w:tr>`)
	tableRe     = regexp.MustCompile(`(?s)<w:tbl>.*?</w:tbl>`)
)

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, nil
}

// docxBodyPath resolves the main document part from [Content_Types].xml.
func docxBodyPath(zr *zip.Reader) string {
	types, err := readZipFile(zr, contentTypesPath)
	if err != nil || types == nil {
		return docxDefaultBodyPath
	}
	for _, re := range []*regexp.Regexp{partNameFirst, typeFirst} {
		if m := re.FindSubmatch(types); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultBodyPath
}

func runText(fragment string) string {
	var b strings.Builder
	for _, m := range textRunRe.FindAllStringSubmatch(fragment, -1) {
		b.WriteString(html.UnescapeString(m[1]))
	}
	return b.String()
}

// extractDOCX returns body paragraphs one per line, followed by table rows with cells
// separated by spaces.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	bodyPath := docxBodyPath(zr)
	body, err := readZipFile(zr, bodyPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: read %s: %w", bodyPath, err)
	}
	if body == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", bodyPath)
	}
	doc := string(body)

	tables := tableRe.FindAllString(doc, -1)
	outside := tableRe.ReplaceAllString(doc, "")

	var b strings.Builder
	for _, p := range paragraphRe.FindAllString(outside, -1) {
		b.WriteString(runText(p))
		b.WriteByte('\n')
	}
	for _, tbl := range tables {
		for _, row := range tableRowRe.FindAllString(tbl, -1) {
			for _, cell := range tableCellRe.FindAllString(row, -1) {
				b.WriteString(runText(cell))
				b.WriteByte(' ')
			}
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
