package knowledge

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/aichat/internal/analysis"
)

// loadDocuments walks dir for markdown and plain-text files and returns one
// chromem document per chunk. Markdown is reduced to its text content first
// so formatting noise does not pollute the embeddings.
func loadDocuments(dir string, chunkSize int) ([]chromem.Document, error) {
	if dir == "" {
		return nil, nil
	}
	if chunkSize <= 0 {
		chunkSize = analysis.DefaultChunkSize
	}
	var docs []chromem.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		content := string(data)
		if ext == ".md" {
			content = markdownText(data)
		}
		content = strings.TrimSpace(content)
		if content == "" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		for i, chunk := range analysis.SplitChunks(content, chunkSize) {
			docs = append(docs, chromem.Document{
				ID:      rel + "#" + strconv.Itoa(i),
				Content: chunk,
				Metadata: map[string]string{
					"source": rel,
					"chunk":  strconv.Itoa(i),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// markdownText flattens a markdown document into plain text, keeping block
// boundaries as blank lines.
func markdownText(source []byte) string {
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		var sb strings.Builder
		if fenced, ok := node.(*ast.FencedCodeBlock); ok {
			for i := 0; i < fenced.Lines().Len(); i++ {
				line := fenced.Lines().At(i)
				sb.Write(line.Value(source))
			}
		} else {
			_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
				if !entering {
					return ast.WalkContinue, nil
				}
				if n.Kind() == ast.KindText {
					sb.Write(n.(*ast.Text).Segment.Value(source))
					if n.(*ast.Text).SoftLineBreak() || n.(*ast.Text).HardLineBreak() {
						sb.WriteByte('\n')
					}
				}
				return ast.WalkContinue, nil
			})
		}
		if block := strings.TrimSpace(sb.String()); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}
