package site

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Finding is one issue discovered by a sweep. Sweeps never fail a run;
// findings are surfaced as warnings.
type Finding struct {
	File   string // repo/output-relative file the issue was found in
	Ref    string // the offending reference
	Reason string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %q %s", f.File, f.Ref, f.Reason)
}

// SweepLinks walks the generated site and reports local hrefs that do not
// resolve to a file in the output tree. External URLs, anchors, and
// mailto links are ignored.
func SweepLinks(root string) ([]Finding, error) {
	var findings []Finding

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		refs, err := localRefs(path)
		if err != nil {
			findings = append(findings, Finding{File: rel, Reason: fmt.Sprintf("unparsable html: %v", err)})
			return nil
		}
		for _, ref := range refs {
			if !refResolves(root, filepath.Dir(path), ref) {
				findings = append(findings, Finding{File: rel, Ref: ref, Reason: "target not found in site output"})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sweep site %s: %w", root, err)
	}
	return findings, nil
}

// localRefs parses one HTML file and extracts link-like attributes that
// point inside the site.
func localRefs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, err
	}

	var refs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			attr := ""
			switch n.Data {
			case "a", "link":
				attr = "href"
			case "img", "script":
				attr = "src"
			}
			if attr != "" {
				for _, a := range n.Attr {
					if a.Key == attr && isLocalRef(a.Val) {
						refs = append(refs, a.Val)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs, nil
}

func isLocalRef(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return false
	}
	for _, prefix := range []string{"http://", "https://", "//", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(ref, prefix) {
			return false
		}
	}
	return true
}

// refResolves checks whether a local reference points at something in the
// output tree. Directory references resolve through index.html, matching
// how static hosts serve them.
func refResolves(root, fromDir, ref string) bool {
	if i := strings.IndexAny(ref, "#?"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return true
	}

	var target string
	if strings.HasPrefix(ref, "/") {
		target = filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(ref, "/")))
	} else {
		target = filepath.Join(fromDir, filepath.FromSlash(ref))
	}

	info, err := os.Stat(target)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err := os.Stat(filepath.Join(target, "index.html"))
		return err == nil
	}
	return true
}
