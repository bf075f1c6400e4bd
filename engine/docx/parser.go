// Package docx reads the section structure out of a .docx file: a stream
// of paragraphs, each carrying a style name, turned into (heading-path,
// body-text) sections (§4.1).
package docx

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"regexp"
	"strings"

	"github.com/hutschen/doc-audit-api/engine/domain"
)

// headingStyle matches the built-in Word heading style ID as it appears in
// word/document.xml's <w:pStyle w:val="..."/> — an unspaced identifier like
// "Heading1", not the python-docx-resolved display name "Heading 1" (no
// styles.xml lookup is performed here, so IDs are all we ever see; the
// pattern still tolerates an internal space for robustness).
var headingStyle = regexp.MustCompile(`(?i)^heading\s*(\d+)$`)

// Parse opens the .docx file at path and returns its sections in document
// order. A heading paragraph at level L closes the prior section, keeps
// only the first L-1 elements of the heading path, and opens a new section
// whose body starts with the heading's own text. The final accumulated
// section is always emitted, even if empty.
func Parse(path string) ([]domain.Section, error) {
	paragraphs, err := readParagraphs(path)
	if err != nil {
		return nil, domain.NewParseError(path, err)
	}

	var sections []domain.Section
	var heading []string
	var body []string

	for _, p := range paragraphs {
		text := normalizeWhitespace(p.Text)
		level, ok := headingLevel(p.Style)
		if ok {
			sections = append(sections, domain.Section{
				HeadingPath: append([]string(nil), heading...),
				Body:        strings.Join(body, "\n\n"),
			})
			if level > len(heading) {
				level = len(heading) + 1
			}
			heading = append(append([]string(nil), heading[:level-1]...), text)
			body = []string{text}
		} else {
			body = append(body, text)
		}
	}
	sections = append(sections, domain.Section{
		HeadingPath: append([]string(nil), heading...),
		Body:        strings.Join(body, "\n\n"),
	})
	return sections, nil
}

// headingLevel reports the heading level captured by "Heading (\d+)" in
// the style name, and whether the style names a heading at all.
func headingLevel(style string) (int, bool) {
	m := headingStyle.FindStringSubmatch(style)
	if m == nil {
		return 0, false
	}
	level := 0
	for _, r := range m[1] {
		level = level*10 + int(r-'0')
	}
	if level < 1 {
		return 0, false
	}
	return level, true
}

// normalizeWhitespace collapses any run of whitespace to a single space
// and trims the result, per §4.1.
func normalizeWhitespace(s string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

type paragraph struct {
	Style string
	Text  string
}

// readParagraphs extracts word/document.xml from the .docx zip archive and
// unmarshals its paragraph stream.
func readParagraphs(path string) ([]paragraph, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, errNoDocumentXML
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	out := make([]paragraph, 0, len(doc.Body.Paras))
	for _, p := range doc.Body.Paras {
		out = append(out, paragraph{Style: p.style(), Text: p.text()})
	}
	return out, nil
}

var errNoDocumentXML = xmlMissingError("word/document.xml not found in archive")

type xmlMissingError string

func (e xmlMissingError) Error() string { return string(e) }

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxBody struct {
	Paras []docxPara `xml:"p"`
}

type docxPara struct {
	PPr  *docxParaPr `xml:"pPr"`
	Runs []docxRun   `xml:"r"`
}

func (p docxPara) style() string {
	if p.PPr != nil && p.PPr.PStyle != nil {
		return p.PPr.PStyle.Val
	}
	return ""
}

func (p docxPara) text() string {
	var b strings.Builder
	for _, run := range p.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

type docxParaPr struct {
	PStyle *docxPStyle `xml:"pStyle"`
}

type docxPStyle struct {
	Val string `xml:"val,attr"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}
