// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists research runs, their documents, and extracted
// notes in a SQLite database with a full-text index over note content.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meshintel/deep-research/pkg/types"
)

const dbFile = "research.db"

// Store manages the research database.
type Store struct {
	db      *sql.DB
	dataDir string
}

// NewStore opens or creates the database at DataDir/research.db and
// ensures the schema exists.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dataDir: cfg.DataDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			topics TEXT,
			questions TEXT,
			keywords TEXT,
			created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT NOT NULL,
			run_id TEXT NOT NULL REFERENCES runs(id),
			title TEXT,
			summary TEXT,
			authors TEXT,
			document_uri TEXT,
			published_date TEXT,
			source TEXT,
			source_query TEXT,
			relevance_score REAL,
			analysis_status TEXT,
			PRIMARY KEY (run_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_run ON documents(run_id)`,
		`CREATE TABLE IF NOT EXISTS notes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			document_uri TEXT NOT NULL,
			quote TEXT NOT NULL,
			justification TEXT,
			related_question TEXT,
			page_number INTEGER,
			relevance_score REAL,
			citations TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_run ON notes(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='notes_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE notes_fts USING fts5(quote, justification, content=notes, content_rowid=rowid)`,
			`CREATE TRIGGER notes_ai AFTER INSERT ON notes BEGIN
				INSERT INTO notes_fts(rowid, quote, justification) VALUES (new.rowid, new.quote, new.justification);
			END`,
			`CREATE TRIGGER notes_ad AFTER DELETE ON notes BEGIN
				INSERT INTO notes_fts(notes_fts, rowid, quote, justification) VALUES('delete', old.rowid, old.quote, old.justification);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}
	return nil
}

// SaveRun upserts the run record. Documents are stored separately via
// UpsertDocuments so the run row can exist before search completes.
func (s *Store) SaveRun(ctx context.Context, run *types.ResearchRun) error {
	topicsJSON, _ := json.Marshal(run.Intent.Topics)
	questionsJSON, _ := json.Marshal(run.Intent.Questions)
	keywordsJSON, _ := json.Marshal(run.Keywords)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, topics, questions, keywords, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			topics=excluded.topics, questions=excluded.questions,
			keywords=excluded.keywords`,
		run.ID, string(topicsJSON), string(questionsJSON), string(keywordsJSON),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}
	return nil
}

// UpsertDocuments writes the documents' current state for a run in one
// transaction. Calling it again after a status change overwrites the
// previous rows.
func (s *Store) UpsertDocuments(ctx context.Context, runID string, docs []types.CandidateDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, run_id, title, summary, authors, document_uri,
			published_date, source, source_query, relevance_score, analysis_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, id) DO UPDATE SET
			title=excluded.title, summary=excluded.summary, authors=excluded.authors,
			document_uri=excluded.document_uri, published_date=excluded.published_date,
			source=excluded.source, source_query=excluded.source_query,
			relevance_score=excluded.relevance_score, analysis_status=excluded.analysis_status`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		authorsJSON, _ := json.Marshal(d.Authors)
		_, err := stmt.ExecContext(ctx,
			d.ID, runID, d.Title, d.Summary, string(authorsJSON), d.DocumentURI,
			d.PublishedDate, d.Source, d.SourceQuery, d.RelevanceScore, string(d.AnalysisStatus),
		)
		if err != nil {
			return fmt.Errorf("upserting document %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// UpdateStatus transitions one document's analysis status.
func (s *Store) UpdateStatus(ctx context.Context, runID, docID string, status types.AnalysisStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET analysis_status = ? WHERE run_id = ? AND id = ?`,
		string(status), runID, docID,
	)
	if err != nil {
		return fmt.Errorf("updating status for %s: %w", docID, err)
	}
	return nil
}

// SaveNotes appends a batch of notes for a run. It is safe to call while
// extraction is still producing more batches.
func (s *Store) SaveNotes(ctx context.Context, runID string, notes []types.ExtractedNote) error {
	if len(notes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO notes (run_id, document_uri, quote, justification,
			related_question, page_number, relevance_score, citations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range notes {
		citationsJSON, _ := json.Marshal(n.Citations)
		_, err := stmt.ExecContext(ctx,
			runID, n.DocumentURI, n.Quote, n.Justification,
			n.RelatedQuestion, n.PageNumber, n.RelevanceScore, string(citationsJSON),
		)
		if err != nil {
			return fmt.Errorf("inserting note: %w", err)
		}
	}
	return tx.Commit()
}

// Notes returns all stored notes for a run in insertion order.
func (s *Store) Notes(ctx context.Context, runID string) ([]types.ExtractedNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_uri, quote, justification, related_question,
			page_number, relevance_score, citations
		 FROM notes WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// SearchNotes runs a full-text query over quotes and justifications
// across all runs, most relevant first.
func (s *Store) SearchNotes(ctx context.Context, query string, limit int) ([]types.ExtractedNote, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT n.document_uri, n.quote, n.justification, n.related_question,
			n.page_number, n.relevance_score, n.citations
		 FROM notes_fts f
		 JOIN notes n ON n.rowid = f.rowid
		 WHERE notes_fts MATCH ?
		 ORDER BY rank LIMIT ?`, ftsQuote(query), limit)
	if err != nil {
		return nil, fmt.Errorf("searching notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows *sql.Rows) ([]types.ExtractedNote, error) {
	var notes []types.ExtractedNote
	for rows.Next() {
		var n types.ExtractedNote
		var citationsJSON string
		if err := rows.Scan(&n.DocumentURI, &n.Quote, &n.Justification,
			&n.RelatedQuestion, &n.PageNumber, &n.RelevanceScore, &citationsJSON); err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		if citationsJSON != "" {
			json.Unmarshal([]byte(citationsJSON), &n.Citations)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ftsQuote wraps each whitespace-separated term in double quotes so user
// input cannot inject FTS5 query syntax.
func ftsQuote(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"`
	}
	return strings.Join(terms, " ")
}

// Run loads a run record with its documents. Notes are attached to their
// documents by URI.
func (s *Store) Run(ctx context.Context, runID string) (*types.ResearchRun, error) {
	run := &types.ResearchRun{ID: runID}

	var topicsJSON, questionsJSON, keywordsJSON, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT topics, questions, keywords, created_at FROM runs WHERE id = ?`, runID,
	).Scan(&topicsJSON, &questionsJSON, &keywordsJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	json.Unmarshal([]byte(topicsJSON), &run.Intent.Topics)
	json.Unmarshal([]byte(questionsJSON), &run.Intent.Questions)
	json.Unmarshal([]byte(keywordsJSON), &run.Keywords)
	if t, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		run.CreatedAt = t
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, summary, authors, document_uri, published_date,
			source, source_query, relevance_score, analysis_status
		 FROM documents WHERE run_id = ? ORDER BY relevance_score DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d types.CandidateDocument
		var authorsJSON, status string
		if err := rows.Scan(&d.ID, &d.Title, &d.Summary, &authorsJSON, &d.DocumentURI,
			&d.PublishedDate, &d.Source, &d.SourceQuery, &d.RelevanceScore, &status); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		json.Unmarshal([]byte(authorsJSON), &d.Authors)
		d.AnalysisStatus = types.AnalysisStatus(status)
		run.Documents = append(run.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	notes, err := s.Notes(ctx, runID)
	if err != nil {
		return nil, err
	}
	byURI := make(map[string][]types.ExtractedNote)
	for _, n := range notes {
		byURI[n.DocumentURI] = append(byURI[n.DocumentURI], n)
	}
	for i := range run.Documents {
		run.Documents[i].Notes = byURI[run.Documents[i].DocumentURI]
	}

	return run, nil
}
