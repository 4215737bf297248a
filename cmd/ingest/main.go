// Command ingest loads a book file (.txt or .pdf), splits it into chapters,
// stores them, and starts the background pre-parse workflow. It exists so the
// system is operable without the upstream ingestion service.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/ledongthuc/pdf"
	"go.temporal.io/sdk/client"

	"sceneminer/internal/config"
	"sceneminer/internal/models"
	"sceneminer/internal/storage"
	"sceneminer/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	var (
		path   = flag.String("file", "", "path to a .txt or .pdf book")
		title  = flag.String("title", "", "document title (defaults to file name)")
		author = flag.String("author", "", "document author")
	)
	flag.Parse()
	if *path == "" {
		log.Fatal("usage: ingest -file book.txt [-title ...] [-author ...]")
	}

	text, err := readBook(*path)
	if err != nil {
		log.Fatal(err)
	}
	docTitle := *title
	if docTitle == "" {
		docTitle = strings.TrimSuffix(filepath.Base(*path), filepath.Ext(*path))
	}

	chapters := splitChapters(text)
	if len(chapters) == 0 {
		log.Fatal("no content units found in file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	doc := models.Document{DocumentID: uuid.NewString(), Title: docTitle, Author: *author}
	units := make([]models.ContentUnit, 0, len(chapters))
	for i, ch := range chapters {
		units = append(units, models.ContentUnit{
			UnitID:     uuid.NewString(),
			DocumentID: doc.DocumentID,
			Ordinal:    i + 1,
			Title:      ch.title,
			Content:    ch.body,
			WordCount:  len(strings.Fields(ch.body)),
		})
	}
	if err := storage.NewDocumentRepo(db).InsertWithUnits(ctx, doc, units); err != nil {
		log.Fatal(err)
	}
	log.Printf("ingested %q: %d units document_id=%s", docTitle, len(units), doc.DocumentID)

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Printf("temporal unavailable, skipping preparse: %v", err)
		return
	}
	defer c.Close()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "preparse-" + doc.DocumentID,
		TaskQueue: cfg.TemporalTaskQueue,
	}, workflows.DocumentPreparseWorkflow, workflows.DocumentPreparseInput{
		DocumentID: doc.DocumentID,
		MaxUnits:   cfg.PreparseUnits,
	})
	if err != nil {
		log.Printf("preparse workflow start failed: %v", err)
		return
	}
	log.Printf("preparse started workflow_id=%s run_id=%s", run.GetID(), run.GetRunID())
}

func readBook(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		f, r, err := pdf.Open(path)
		if err != nil {
			return "", fmt.Errorf("open pdf: %w", err)
		}
		defer f.Close()
		reader, err := r.GetPlainText()
		if err != nil {
			return "", fmt.Errorf("extract pdf text: %w", err)
		}
		buf := new(strings.Builder)
		if _, err := io.Copy(buf, reader); err != nil {
			return "", fmt.Errorf("read extracted text: %w", err)
		}
		return strings.TrimSpace(buf.String()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

var reChapterHeading = regexp.MustCompile(`(?im)^\s*(chapter\s+\w+|part\s+\w+|book\s+\w+|prologue|epilogue|interlude|[IVXLC]+\.)\s*.{0,60}$`)

type chapter struct {
	title string
	body  string
}

// splitChapters cuts the text at heading lines. Text before the first
// heading becomes a front-matter unit; with no headings at all the whole
// book is one unit.
func splitChapters(text string) []chapter {
	locs := reChapterHeading.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		if text == "" {
			return nil
		}
		return []chapter{{title: "", body: text}}
	}
	out := make([]chapter, 0, len(locs)+1)
	if head := strings.TrimSpace(text[:locs[0][0]]); head != "" {
		out = append(out, chapter{title: "", body: head})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		heading := strings.TrimSpace(text[loc[0]:loc[1]])
		body := strings.TrimSpace(text[loc[1]:end])
		if body == "" {
			continue
		}
		out = append(out, chapter{title: heading, body: body})
	}
	return out
}
