package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dkowalski/arbor/internal/agents"
	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/config"
	"github.com/dkowalski/arbor/internal/db"
	"github.com/dkowalski/arbor/internal/errors"
	"github.com/dkowalski/arbor/internal/planner"
	"github.com/dkowalski/arbor/internal/pool"
	"github.com/dkowalski/arbor/internal/taxonomy"
	"github.com/dkowalski/arbor/internal/vtree"
	"github.com/dkowalski/arbor/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(database *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "arbor",
		Usage:   "Virtual folder taxonomy engine",
		Version: Version,
		Commands: []*cli.Command{
			ingestCmd(database, cfg),
			planCmd(database, cfg),
			treeCmd(database),
			reoptimizeCmd(database, cfg),
			webCmd(database, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// newPlanner wires the agent client, worker pool and planner from config.
func newPlanner(cfg *config.Config) *planner.Planner {
	client := agents.NewClient(cfg.AgentModel, time.Duration(cfg.AgentTimeoutSecs)*time.Second)
	p := pool.New(cfg.MaxConcurrentAgentCalls)
	orch := planner.NewOrchestrator(client, p)
	return planner.New(orch, client, client, cfg.OptimizeThreshold)
}

// IngestOutput summarizes an ingest run.
type IngestOutput struct {
	SourceID   string `json:"source_id"`
	FileCount  int    `json:"file_count"`
	Classified int    `json:"classified"`
	Degraded   int    `json:"degraded"`
}

// ingestCmd creates the ingest command.
func ingestCmd(database *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Scan a directory into file cards and classify them",
		ArgsUsage: "<source-id> <dir>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-classify", Usage: "Skip the classification agent (heuristic tags only)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("usage: arbor ingest <source-id> <dir>"))
			}
			sourceID := c.Args().Get(0)
			root := c.Args().Get(1)

			cards, err := scanSource(sourceID, root)
			if err != nil {
				return outputError(err)
			}
			if len(cards) == 0 {
				return outputError(errors.NewEmptyCollection(sourceID))
			}

			var classifier agents.Classifier = agents.Offline{}
			if !c.Bool("no-classify") {
				classifier = agents.NewClient(cfg.AgentModel, time.Duration(cfg.AgentTimeoutSecs)*time.Second)
			}

			degraded := classifyCards(c.Context, classifier, cfg.MaxConcurrentAgentCalls, cards)

			if err := db.UpsertFileCards(database, cards); err != nil {
				return outputError(err)
			}

			return outputJSON(IngestOutput{
				SourceID:   sourceID,
				FileCount:  len(cards),
				Classified: len(cards) - degraded,
				Degraded:   degraded,
			})
		},
	}
}

// PlanOutput summarizes a planning run.
type PlanOutput struct {
	RunID          string            `json:"run_id"`
	SourceID       string            `json:"source_id"`
	Strategy       taxonomy.Strategy `json:"strategy"`
	FolderCount    int               `json:"folder_count"`
	RuleCount      int               `json:"rule_count"`
	PlacementCount int               `json:"placement_count"`
}

// planCmd creates the plan command.
func planCmd(database *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Plan a taxonomy for an ingested source and persist placements",
		ArgsUsage: "<source-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("usage: arbor plan <source-id>"))
			}
			sourceID := c.Args().First()

			cards, err := db.FileCardsBySource(database, sourceID)
			if err != nil {
				return outputError(err)
			}

			result, err := newPlanner(cfg).PlanCollection(c.Context, sourceID, cards)
			if err != nil {
				return outputError(err)
			}

			if err := db.SavePlacements(database, sourceID, result.RunID, result.Placements); err != nil {
				return outputError(err)
			}
			if err := db.SaveRun(database, result.RunID, sourceID, result.Strategy, result.Plan, len(cards)); err != nil {
				return outputError(err)
			}

			return outputJSON(PlanOutput{
				RunID:          result.RunID,
				SourceID:       sourceID,
				Strategy:       result.Strategy,
				FolderCount:    len(result.Plan.Folders),
				RuleCount:      len(result.Plan.Rules),
				PlacementCount: len(result.Placements),
			})
		},
	}
}

// treeCmd creates the tree command.
func treeCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Usage:     "Print the virtual tree for a source as JSON",
		ArgsUsage: "<source-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "top-level", Usage: "Only top-level folders with counts"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Value: "/", Usage: "Subtree to print"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("usage: arbor tree <source-id>"))
			}
			sourceID := c.Args().First()

			if c.Bool("top-level") {
				counts, total, err := db.TopLevelCounts(database, sourceID)
				if err != nil {
					return outputError(err)
				}
				if total == 0 {
					return outputError(errors.NewNotFound(sourceID))
				}
				return outputJSON(vtree.BuildTopLevelOnly(counts, total))
			}

			root, err := loadTree(database, sourceID)
			if err != nil {
				return outputError(err)
			}

			node := vtree.NodeByPath(root, c.String("path"))
			if node == nil {
				return outputError(errors.NewNotFound(c.String("path")))
			}
			return outputJSON(node)
		},
	}
}

// ReoptimizeOutput summarizes a re-optimization pass.
type ReoptimizeOutput struct {
	SourceID       string `json:"source_id"`
	PlacementCount int    `json:"placement_count"`
	MovedCount     int    `json:"moved_count"`
}

// reoptimizeCmd creates the reoptimize command.
func reoptimizeCmd(database *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "reoptimize",
		Usage:     "Re-run optimization over a source's persisted placements",
		ArgsUsage: "<source-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("usage: arbor reoptimize <source-id>"))
			}
			sourceID := c.Args().First()

			cards, err := db.FileCardsBySource(database, sourceID)
			if err != nil {
				return outputError(err)
			}
			placements, err := db.PlacementsBySource(database, sourceID)
			if err != nil {
				return outputError(err)
			}
			if len(placements) == 0 {
				return outputError(errors.NewNotFound(sourceID))
			}

			runID, _, err := db.LatestRun(database, sourceID)
			if err != nil {
				return outputError(err)
			}

			updated := newPlanner(cfg).ReoptimizePersisted(c.Context, cards, placements)

			moved := 0
			for i := range updated {
				if updated[i].VirtualPath != placements[i].VirtualPath {
					moved++
				}
			}

			if err := db.SavePlacements(database, sourceID, runID, updated); err != nil {
				return outputError(err)
			}

			return outputJSON(ReoptimizeOutput{
				SourceID:       sourceID,
				PlacementCount: len(updated),
				MovedCount:     moved,
			})
		},
	}
}

// webCmd creates the web command.
func webCmd(database *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Serve the read-only tree browser",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Value: 8700, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(database, cfg, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(srv); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// scanSource walks root and builds one card per regular file. Hidden files
// and directories (dot-prefixed) are skipped.
func scanSource(sourceID, root string) ([]card.FileCard, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid directory: %v", err))
	}
	info, err := os.Stat(absRoot)
	if err != nil || !info.IsDir() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("not a directory: %s", root))
	}

	var cards []card.FileCard
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != absRoot {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		cards = append(cards, card.FileCard{
			FileID:       fileID(rel),
			SourceID:     sourceID,
			Path:         p,
			RelativePath: rel,
			Name:         d.Name(),
			Extension:    strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), ".")),
			Size:         fi.Size(),
			MTime:        fi.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return cards, nil
}

// fileID derives a stable identifier from the relative path, so re-ingesting
// a source updates cards in place instead of duplicating them.
func fileID(relativePath string) string {
	h := fnv.New64a()
	h.Write([]byte(relativePath))
	return fmt.Sprintf("%016x", h.Sum64())
}

// classifyCards fills summary and tags on every card through the worker pool
// and returns how many classifications degraded to the heuristic fallback.
func classifyCards(ctx context.Context, classifier agents.Classifier, maxConcurrent int, cards []card.FileCard) int {
	p := pool.New(maxConcurrent)
	degraded := make([]bool, len(cards))

	for i := range cards {
		i := i
		p.Execute(func() {
			res := classifier.Classify(ctx, cards[i])
			if res.Value.Summary != "" {
				summary := res.Value.Summary
				cards[i].Summary = &summary
			}
			cards[i].Tags = card.NormalizeTags(res.Value.Tags)
			degraded[i] = res.Fallback
		})
	}
	p.WaitForCompletion()

	count := 0
	for _, d := range degraded {
		if d {
			count++
		}
	}
	return count
}

// loadTree builds the full virtual tree for a source from persisted state.
func loadTree(database *sql.DB, sourceID string) (*vtree.Node, error) {
	placements, err := db.PlacementsBySource(database, sourceID)
	if err != nil {
		return nil, err
	}
	if len(placements) == 0 {
		return nil, errors.NewNotFound(sourceID)
	}
	cards, err := db.FileCardsBySource(database, sourceID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]card.FileCard, len(cards))
	for _, fc := range cards {
		byID[fc.FileID] = fc
	}
	root, _ := vtree.Build(placements, byID)
	return root, nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if arborErr, ok := err.(*errors.ArborError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", arborErr.Code, arborErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
