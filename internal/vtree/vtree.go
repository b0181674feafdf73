// Package vtree materializes placement outputs into a browsable virtual
// folder tree. The tree is a read model: building it never mutates placements,
// and rebuilding from the same inputs yields the same tree.
package vtree

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/taxonomy"
)

// Node is one entry in the virtual tree. Directories carry Children and an
// aggregate FileCount; files carry the placement and card metadata.
type Node struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	IsDir     bool    `json:"is_dir"`
	FileCount int     `json:"file_count"`
	Children  []*Node `json:"children,omitempty"`

	FileID     string   `json:"file_id,omitempty"`
	RealPath   string   `json:"real_path,omitempty"`
	Size       int64    `json:"size,omitempty"`
	MTime      int64    `json:"mtime,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Stats summarizes a built tree.
type Stats struct {
	TotalFiles    int     `json:"total_files"`
	TotalFolders  int     `json:"total_folders"`
	MaxDepth      int     `json:"max_depth"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Build assembles the full tree from placements and the cards they refer to.
// Placements whose card is missing are skipped with a warning rather than
// failing the whole tree; the card store and placement store can briefly
// disagree during re-ingestion.
func Build(placements []taxonomy.Placement, cards map[string]card.FileCard) (*Node, []string) {
	root := newDir("/", "/")
	var warnings []string

	for _, pl := range placements {
		c, ok := cards[pl.FileID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("placement for unknown file %s skipped", pl.FileID))
			continue
		}

		segments := splitVirtual(pl.VirtualPath)
		if len(segments) == 0 {
			warnings = append(warnings, fmt.Sprintf("placement for file %s has empty virtual path", pl.FileID))
			continue
		}

		dir := root
		for _, seg := range segments[:len(segments)-1] {
			dir = dir.childDir(seg)
		}

		name := segments[len(segments)-1]
		leaf := &Node{
			Name:       name,
			Path:       joinPath(dir.Path, name),
			FileID:     pl.FileID,
			RealPath:   c.Path,
			Size:       c.Size,
			MTime:      c.MTime,
			Summary:    c.SummaryText(),
			Tags:       pl.Tags,
			Confidence: pl.Confidence,
			Reason:     pl.Reason,
		}
		if existing := dir.child(name); existing != nil {
			warnings = append(warnings, fmt.Sprintf("duplicate virtual path %s; keeping file %s", leaf.Path, existing.FileID))
			continue
		}
		dir.Children = append(dir.Children, leaf)
	}

	sortTree(root)
	countFiles(root)
	return root, warnings
}

// BuildTopLevelOnly assembles just the root's directory children from
// aggregated top-level segment counts. Large trees are browsed lazily; the
// full build is deferred until a branch is opened.
func BuildTopLevelOnly(segmentCounts map[string]int, totalFiles int) *Node {
	root := newDir("/", "/")
	for seg, count := range segmentCounts {
		child := newDir(seg, joinPath("/", seg))
		child.FileCount = count
		root.Children = append(root.Children, child)
	}
	sortTree(root)
	root.FileCount = totalFiles
	return root
}

// NodeByPath walks the tree to the node at the given virtual path, or nil.
func NodeByPath(root *Node, p string) *Node {
	segments := splitVirtual(p)
	node := root
	for _, seg := range segments {
		if node = node.child(seg); node == nil {
			return nil
		}
	}
	return node
}

// Children returns the direct children of the node at the given path, or nil
// when the path does not resolve to a directory.
func Children(root *Node, p string) []*Node {
	node := NodeByPath(root, p)
	if node == nil || !node.IsDir {
		return nil
	}
	return node.Children
}

// Flatten returns every node in pre-order, root first.
func Flatten(root *Node) []*Node {
	out := []*Node{root}
	for _, c := range root.Children {
		out = append(out, Flatten(c)...)
	}
	return out
}

// ComputeStats aggregates counts, depth, and mean placement confidence.
func ComputeStats(root *Node) Stats {
	var s Stats
	var confidenceSum float64

	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		if depth > s.MaxDepth {
			s.MaxDepth = depth
		}
		if n.IsDir {
			if n != root {
				s.TotalFolders++
			}
			for _, c := range n.Children {
				walk(c, depth+1)
			}
			return
		}
		s.TotalFiles++
		confidenceSum += n.Confidence
	}
	walk(root, 0)

	if s.TotalFiles > 0 {
		s.AvgConfidence = confidenceSum / float64(s.TotalFiles)
	}
	return s
}

func newDir(name, path string) *Node {
	return &Node{Name: name, Path: path, IsDir: true}
}

func (n *Node) child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// childDir returns the named directory child, creating it when absent. A
// file node squatting on a directory name is left alone and shadowed by a
// fresh directory, which the duplicate-path warning upstream covers.
func (n *Node) childDir(name string) *Node {
	if c := n.child(name); c != nil && c.IsDir {
		return c
	}
	c := newDir(name, joinPath(n.Path, name))
	n.Children = append(n.Children, c)
	return c
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func splitVirtual(p string) []string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// sortTree orders every directory's children: directories before files, then
// locale-aware case-insensitive by name. Collation keeps accented names in
// human order instead of byte order.
func sortTree(root *Node) {
	col := collate.New(language.Und, collate.IgnoreCase)
	var walk func(n *Node)
	walk = func(n *Node) {
		sort.SliceStable(n.Children, func(i, j int) bool {
			a, b := n.Children[i], n.Children[j]
			if a.IsDir != b.IsDir {
				return a.IsDir
			}
			return col.CompareString(a.Name, b.Name) < 0
		})
		for _, c := range n.Children {
			if c.IsDir {
				walk(c)
			}
		}
	}
	walk(root)
}

// countFiles fills FileCount bottom-up: leaves count one, directories sum
// their children.
func countFiles(n *Node) int {
	if !n.IsDir {
		n.FileCount = 1
		return 1
	}
	total := 0
	for _, c := range n.Children {
		total += countFiles(c)
	}
	n.FileCount = total
	return total
}
