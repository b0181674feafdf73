package web

import (
	"database/sql"
	"net/http"
	"path"
	"strings"

	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/config"
	"github.com/dkowalski/arbor/internal/db"
	"github.com/dkowalski/arbor/internal/errors"
	"github.com/dkowalski/arbor/internal/vtree"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// HandleSources renders the source list page.
func (h *Handlers) HandleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := db.ListSources(h.db)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "sources", SourcesPageData{
		PageData: PageData{Title: "Sources", Version: h.renderer.version, Nav: "sources"},
		Sources:  sources,
	})
}

// HandleTree renders the tree browse page for a source. The optional ?path=
// query parameter selects the directory being browsed; it defaults to the
// root.
func (h *Handlers) HandleTree(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("source")

	root, warnings, err := h.buildTree(sourceID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	browsePath := r.URL.Query().Get("path")
	if browsePath == "" {
		browsePath = "/"
	}
	node := vtree.NodeByPath(root, browsePath)
	if node == nil || !node.IsDir {
		h.renderer.renderError(w, r, errors.NewNotFound(browsePath))
		return
	}

	h.renderer.renderPage(w, r, "tree", TreePageData{
		PageData: PageData{Title: sourceID + " tree", Version: h.renderer.version, Nav: "tree"},
		SourceID: sourceID,
		Node:     node,
		Crumbs:   breadcrumbs(node.Path),
		Warnings: warnings,
	})
}

// HandleFileDetail renders one file's placement detail, with the summary
// rendered as markdown.
func (h *Handlers) HandleFileDetail(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("source")
	fileID := r.PathValue("fileID")

	root, _, err := h.buildTree(sourceID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	var node *vtree.Node
	for _, n := range vtree.Flatten(root) {
		if !n.IsDir && n.FileID == fileID {
			node = n
			break
		}
	}
	if node == nil {
		h.renderer.renderError(w, r, errors.NewNotFound(fileID))
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData:        PageData{Title: node.Name, Version: h.renderer.version, Nav: "tree"},
		SourceID:        sourceID,
		Node:            node,
		RenderedSummary: renderMarkdown(node.Summary),
		ParentPath:      parentPath(node.Path),
	})
}

// HandleStats renders the tree statistics page for a source.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("source")

	root, _, err := h.buildTree(sourceID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "stats", StatsPageData{
		PageData: PageData{Title: sourceID + " stats", Version: h.renderer.version, Nav: "stats"},
		SourceID: sourceID,
		Stats:    vtree.ComputeStats(root),
	})
}

// HandleTreeJSON returns the full tree as JSON for programmatic clients.
func (h *Handlers) HandleTreeJSON(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("source")

	root, _, err := h.buildTree(sourceID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, root)
}

// buildTree loads a source's placements and cards and materializes its tree.
func (h *Handlers) buildTree(sourceID string) (*vtree.Node, []string, error) {
	placements, err := db.PlacementsBySource(h.db, sourceID)
	if err != nil {
		return nil, nil, err
	}
	if len(placements) == 0 {
		return nil, nil, errors.NewNotFound(sourceID)
	}

	cards, err := db.FileCardsBySource(h.db, sourceID)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]card.FileCard, len(cards))
	for _, c := range cards {
		byID[c.FileID] = c
	}

	root, warnings := vtree.Build(placements, byID)
	return root, warnings, nil
}

// breadcrumbs splits a virtual path into clickable segments, root first.
func breadcrumbs(p string) []Crumb {
	crumbs := []Crumb{{Name: "/", Path: "/"}}
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return crumbs
	}

	acc := ""
	for _, seg := range strings.Split(trimmed, "/") {
		acc += "/" + seg
		crumbs = append(crumbs, Crumb{Name: seg, Path: acc})
	}
	return crumbs
}

// parentPath returns the directory holding a node, "/" for top-level entries.
func parentPath(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "" {
		return "/"
	}
	return dir
}
