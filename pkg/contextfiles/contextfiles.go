// Package contextfiles expands a Request's context-file glob patterns
// into concrete file contents (spec §3 "Request.contextFilePatterns",
// §4.7 step 2's task-prompt context suffix, §11.1).
//
// Grounded on pkg/tools/glob.go's doublestar usage for pattern
// expansion and pkg/tools/fileread.go's readPDF for PDF extraction,
// generalized from single-file tool calls to a batch loader that
// folds every matched file into one prompt-ready block.
package contextfiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gopdf "github.com/ledongthuc/pdf"

	"github.com/relaywork/modelbroker/pkg/orcherr"
)

const (
	maxFilesExpanded  = 200
	maxBytesPerFile   = 256 * 1024
	maxPDFPagesPerDoc = 20
)

// File is one expanded context file and its extracted text.
type File struct {
	Path string
	Text string
}

// Expand resolves patterns (relative to dir) into a deduplicated,
// sorted list of Files, reading each match's content — extracting
// plain text from the first maxPDFPagesPerDoc pages of PDFs and reading
// everything else up to maxBytesPerFile bytes (longer files are cut
// without a marker). When more than maxFilesExpanded files match, only
// the first maxFilesExpanded in sorted order are read, and a final File
// with Path "(truncated)" notes that further matches were dropped.
func Expand(dir string, patterns []string) ([]File, error) {
	seen := make(map[string]bool)
	var matches []string

	for _, pattern := range patterns {
		full := filepath.Join(dir, pattern)
		found, err := doublestar.FilepathGlob(full)
		if err != nil {
			return nil, orcherr.Wrap(orcherr.KindValidation, "contextfiles.Expand", "invalid glob pattern: "+pattern, err)
		}
		for _, m := range found {
			if !seen[m] {
				seen[m] = true
				matches = append(matches, m)
			}
		}
	}

	sort.Strings(matches)
	truncated := false
	if len(matches) > maxFilesExpanded {
		matches = matches[:maxFilesExpanded]
		truncated = true
	}

	files := make([]File, 0, len(matches))
	for _, path := range matches {
		text, err := readOne(path)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: path, Text: text})
	}

	if truncated {
		files = append(files, File{
			Path: "(truncated)",
			Text: fmt.Sprintf("... context-file expansion capped at %d files; additional matches were dropped ...", maxFilesExpanded),
		})
	}
	return files, nil
}

func readOne(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindFilesystem, "contextfiles.Expand", "read "+path, err)
	}
	if len(data) > maxBytesPerFile {
		data = data[:maxBytesPerFile]
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	pdfFile, reader, err := gopdf.Open(path)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindFilesystem, "contextfiles.Expand", "open pdf "+path, err)
	}
	defer pdfFile.Close()

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return "", nil
	}
	endPage := totalPages
	if endPage > maxPDFPagesPerDoc {
		endPage = maxPDFPagesPerDoc
	}

	var b strings.Builder
	for p := 1; p <= endPage; p++ {
		page := reader.Page(p)
		if page.V.IsNull() {
			continue
		}
		text, extractErr := page.GetPlainText(nil)
		if extractErr != nil {
			fmt.Fprintf(&b, "[page %d: error extracting text: %s]\n", p, extractErr)
			continue
		}
		b.WriteString(text)
	}
	if endPage < totalPages {
		fmt.Fprintf(&b, "\n... (pdf has %d pages; only the first %d were extracted) ...\n", totalPages, endPage)
	}
	return b.String(), nil
}

// BuildSuffix renders expanded files into the task-prompt context
// suffix the Agent Session Supervisor appends to a task (spec §4.7
// step 2).
func BuildSuffix(files []File) string {
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Context files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Path, f.Text)
	}
	return b.String()
}
