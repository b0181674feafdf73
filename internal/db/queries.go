package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/errors"
	"github.com/dkowalski/arbor/internal/taxonomy"
)

// UpsertFileCards stores a batch of file cards in one transaction. Existing
// rows for the same (source_id, file_id) are replaced, so re-ingesting a
// source refreshes metadata without duplicating files.
func UpsertFileCards(db *sql.DB, cards []card.FileCard) error {
	if len(cards) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO file_cards (
			source_id, file_id, path, relative_path, name, extension,
			size, mtime, summary, tags_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, file_id) DO UPDATE SET
			path = excluded.path,
			relative_path = excluded.relative_path,
			name = excluded.name,
			extension = excluded.extension,
			size = excluded.size,
			mtime = excluded.mtime,
			summary = excluded.summary,
			tags_json = excluded.tags_json,
			updated_at = excluded.updated_at
	`
	stmt, err := tx.Prepare(query)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i := range cards {
		c := &cards[i]
		tagsJSON, err := marshalTags(c.Tags)
		if err != nil {
			return err
		}
		summary := toNullString(c.Summary)

		if _, err := stmt.Exec(
			c.SourceID, c.FileID, c.Path, c.RelativePath, c.Name, c.Extension,
			c.Size, c.MTime, summary, tagsJSON, now, now,
		); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// FileCardsBySource loads every card for a source, ordered by relative path
// so ingestion order does not leak into planning inputs.
func FileCardsBySource(db *sql.DB, sourceID string) ([]card.FileCard, error) {
	query := `
		SELECT source_id, file_id, path, relative_path, name, extension,
			size, mtime, summary, tags_json
		FROM file_cards
		WHERE source_id = ?
		ORDER BY relative_path
	`
	rows, err := db.Query(query, sourceID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var cards []card.FileCard
	for rows.Next() {
		var (
			c        card.FileCard
			summary  sql.NullString
			tagsJSON sql.NullString
		)
		if err := rows.Scan(
			&c.SourceID, &c.FileID, &c.Path, &c.RelativePath, &c.Name, &c.Extension,
			&c.Size, &c.MTime, &summary, &tagsJSON,
		); err != nil {
			return nil, errors.NewInternal(err)
		}
		c.Summary = fromNullString(summary)
		if c.Tags, err = unmarshalTags(tagsJSON); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return cards, nil
}

// CountFileCards returns the number of cards stored for a source.
func CountFileCards(db *sql.DB, sourceID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM file_cards WHERE source_id = ?", sourceID).Scan(&count)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

// SavePlacements stores a run's placements in one transaction, replacing any
// previous placement for the same (source_id, file_id). A new run therefore
// fully supersedes the old tree for the files it covers.
func SavePlacements(db *sql.DB, sourceID, runID string, placements []taxonomy.Placement) error {
	if len(placements) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO placements (
			source_id, file_id, run_id, virtual_path, tags_json,
			confidence, reason, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, file_id) DO UPDATE SET
			run_id = excluded.run_id,
			virtual_path = excluded.virtual_path,
			tags_json = excluded.tags_json,
			confidence = excluded.confidence,
			reason = excluded.reason,
			updated_at = excluded.updated_at
	`
	stmt, err := tx.Prepare(query)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range placements {
		tagsJSON, err := marshalTags(p.Tags)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(
			sourceID, p.FileID, runID, p.VirtualPath, tagsJSON,
			p.Confidence, p.Reason, now,
		); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// PlacementsBySource loads every placement for a source, ordered by virtual
// path for stable tree builds.
func PlacementsBySource(db *sql.DB, sourceID string) ([]taxonomy.Placement, error) {
	query := `
		SELECT file_id, virtual_path, tags_json, confidence, reason
		FROM placements
		WHERE source_id = ?
		ORDER BY virtual_path
	`
	rows, err := db.Query(query, sourceID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var placements []taxonomy.Placement
	for rows.Next() {
		var (
			p        taxonomy.Placement
			tagsJSON sql.NullString
		)
		if err := rows.Scan(&p.FileID, &p.VirtualPath, &tagsJSON, &p.Confidence, &p.Reason); err != nil {
			return nil, errors.NewInternal(err)
		}
		if p.Tags, err = unmarshalTags(tagsJSON); err != nil {
			return nil, err
		}
		placements = append(placements, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return placements, nil
}

// TopLevelCounts aggregates placements by their first virtual path segment.
// Large trees are browsed from this summary without loading every node.
func TopLevelCounts(db *sql.DB, sourceID string) (map[string]int, int, error) {
	rows, err := db.Query("SELECT virtual_path FROM placements WHERE source_id = ?", sourceID)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	total := 0
	for rows.Next() {
		var vp string
		if err := rows.Scan(&vp); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		total++
		seg := strings.SplitN(strings.TrimPrefix(vp, "/"), "/", 2)[0]
		if seg != "" {
			counts[seg]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return counts, total, nil
}

// SourceInfo summarizes one ingested source.
type SourceInfo struct {
	SourceID       string `json:"source_id"`
	FileCount      int    `json:"file_count"`
	PlacementCount int    `json:"placement_count"`
}

// ListSources returns every known source with its card and placement counts.
func ListSources(db *sql.DB) ([]SourceInfo, error) {
	query := `
		SELECT fc.source_id, COUNT(fc.file_id),
			(SELECT COUNT(*) FROM placements p WHERE p.source_id = fc.source_id)
		FROM file_cards fc
		GROUP BY fc.source_id
		ORDER BY fc.source_id
	`
	rows, err := db.Query(query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var sources []SourceInfo
	for rows.Next() {
		var s SourceInfo
		if err := rows.Scan(&s.SourceID, &s.FileCount, &s.PlacementCount); err != nil {
			return nil, errors.NewInternal(err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return sources, nil
}

// SaveRun records a completed planning run with its strategy and final plan.
func SaveRun(db *sql.DB, runID, sourceID string, strat taxonomy.Strategy, plan taxonomy.Plan, fileCount int) error {
	stratJSON, err := json.Marshal(strat)
	if err != nil {
		return errors.NewInternal(err)
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO runs (run_id, source_id, strategy_json, plan_json, file_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := db.Exec(query, runID, sourceID, string(stratJSON), string(planJSON), fileCount, time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LatestRun returns the most recent run for a source.
func LatestRun(db *sql.DB, sourceID string) (string, taxonomy.Plan, error) {
	query := `
		SELECT run_id, plan_json
		FROM runs
		WHERE source_id = ?
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`
	var (
		runID    string
		planJSON string
	)
	err := db.QueryRow(query, sourceID).Scan(&runID, &planJSON)
	if err == sql.ErrNoRows {
		return "", taxonomy.Plan{}, errors.NewNotFound(sourceID)
	}
	if err != nil {
		return "", taxonomy.Plan{}, errors.NewInternal(err)
	}

	var plan taxonomy.Plan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return "", taxonomy.Plan{}, errors.NewInternal(err)
	}
	return runID, plan, nil
}

// marshalTags converts a tag slice to its nullable JSON column form.
func marshalTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, errors.NewInternal(err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalTags parses the nullable JSON column form back into a slice.
func unmarshalTags(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(ns.String), &tags); err != nil {
		return nil, errors.NewInternal(err)
	}
	return tags, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
