package site

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CheckDocs parses every markdown file under dir and reports suspicious
// links before the generator runs: empty destinations and relative
// markdown links whose target file does not exist. Warnings only; the
// generator remains the authority on what actually builds.
func CheckDocs(dir string) ([]Finding, error) {
	md := goldmark.New()
	var findings []Finding

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}

		doc := md.Parser().Parse(text.NewReader(src))
		walkErr := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			link, ok := n.(*ast.Link)
			if !ok {
				return ast.WalkContinue, nil
			}
			findings = append(findings, checkLink(dir, filepath.Dir(path), rel, string(link.Destination))...)
			return ast.WalkContinue, nil
		})
		return walkErr
	})
	if err != nil {
		return nil, fmt.Errorf("check docs %s: %w", dir, err)
	}
	return findings, nil
}

// checkLink validates a single markdown link destination.
func checkLink(root, fromDir, file, dest string) []Finding {
	if dest == "" {
		return []Finding{{File: file, Ref: dest, Reason: "empty link destination"}}
	}
	if !isLocalRef(dest) {
		return nil
	}
	if i := strings.IndexAny(dest, "#?"); i >= 0 {
		dest = dest[:i]
	}
	// Only markdown-to-markdown references are checked here; other
	// relative targets (generated assets, pretty URLs) are the
	// generator's business.
	if dest == "" || !strings.HasSuffix(strings.ToLower(dest), ".md") {
		return nil
	}

	var target string
	if strings.HasPrefix(dest, "/") {
		target = filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(dest, "/")))
	} else {
		target = filepath.Join(fromDir, filepath.FromSlash(dest))
	}
	if _, err := os.Stat(target); err != nil {
		return []Finding{{File: file, Ref: dest, Reason: "linked document not found"}}
	}
	return nil
}
