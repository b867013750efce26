// Copyright 2025 Scriptorium Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/scriptorium/archivist"
	"github.com/scriptorium/archivist/ai"
	"github.com/scriptorium/archivist/backfill"
	"github.com/scriptorium/archivist/chunker"
	"github.com/scriptorium/archivist/core"
	"github.com/scriptorium/archivist/search"
	"github.com/scriptorium/archivist/storage/sqlite"
	"github.com/urfave/cli/v2"
)

func main() {
	// Local development configuration; absence is fine.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found")
	}

	app := &cli.App{
		Name:  "archivist",
		Usage: "Index and search archived research articles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "backfill",
				Usage:  "Generate embeddings for archived articles that lack them",
				Action: backfillCommand,
				Flags: append(storeFlags(),
					&cli.StringFlag{
						Name:  "essay",
						Usage: "Only process articles collected for this essay slug",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed per provider call",
						Value: 5,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Total attempts per embedding call",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.DurationFlag{
						Name:  "max-retry-delay",
						Usage: "Cap on the backoff sleep",
						Value: 30 * time.Second,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of documents processed concurrently",
						Value: 2,
					},
					&cli.BoolFlag{
						Name:  "reprocess",
						Usage: "Delete and regenerate chunks for already-indexed articles",
					},
					&cli.IntFlag{
						Name:  "target-tokens",
						Usage: "Target chunk size in estimated tokens",
						Value: chunker.DefaultTargetTokens,
					},
					&cli.Float64Flag{
						Name:  "overlap",
						Usage: "Overlap between consecutive chunks as a fraction of chunk size (0 disables)",
						Value: chunker.DefaultOverlapRatio,
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Search indexed chunks by semantic similarity",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(storeFlags(),
					&cli.StringFlag{
						Name:  "essay",
						Usage: "Restrict results to one essay slug",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: search.DefaultLimit,
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity (exclusive)",
						Value: float64(search.DefaultThreshold),
					},
					&cli.BoolFlag{
						Name:  "rerank",
						Usage: "Apply the lexical reranking pass",
					},
					&cli.Float64Flag{
						Name:  "rerank-boost",
						Usage: "Score added per query term found verbatim",
						Value: float64(search.DefaultRerankBoost),
					},
				),
			},
			{
				Name:      "seed",
				Usage:     "Archive an article from a file or stdin",
				ArgsUsage: "[file]",
				Action:    seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "articles",
						Aliases:  []string{"a"},
						Usage:    "Path to the article archive (SQLite)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "url",
						Usage:    "Source URL of the article",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Article title",
					},
					&cli.StringFlag{
						Name:     "essay",
						Usage:    "Essay slug the article was collected for",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "query",
						Usage: "Search query that surfaced the article",
					},
					&cli.StringFlag{
						Name:  "source-date",
						Usage: "Publication date reported by the source",
					},
				},
			},
			{
				Name:   "list",
				Usage:  "List archived articles",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "articles",
						Aliases:  []string{"a"},
						Usage:    "Path to the article archive (SQLite)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "essay",
						Usage: "Only list articles for this essay slug",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// storeFlags returns the flags shared by commands that open the full archive.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to the chunk store directory (BadgerDB)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "articles",
			Aliases:  []string{"a"},
			Usage:    "Path to the article archive (SQLite)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "Embedding provider API key",
			EnvVars: []string{"EMBEDDING_API_KEY"},
			Value:   "none",
		},
	}
}

// openArchive assembles the Archive from the shared store flags.
func openArchive(c *cli.Context) (*archivist.Archive, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("embedding-model")),
		ai.WithToken(c.String("api-key")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding configuration: %w", err)
	}

	opts := []archivist.ArchiveOption{archivist.WithAIConfig(aiConfig)}
	if essay := c.String("essay"); essay != "" {
		opts = append(opts, archivist.WithArticleOptions(sqlite.WithEssaySlug(essay)))
	}

	archive, err := archivist.OpenArchive(c.String("db"), c.String("articles"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return archive, nil
}

func backfillCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.Int("batch-size") <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if c.Int("max-retries") <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	archive, err := openArchive(c)
	if err != nil {
		return err
	}
	defer archive.Close()

	// On the flag surface zero reads as "no overlap"; the chunker spells
	// that as a negative ratio.
	overlap := c.Float64("overlap")
	if overlap <= 0 {
		overlap = -1
	}

	config := &backfill.Config{
		BatchSize:         c.Int("batch-size"),
		MaxRetries:        c.Int("max-retries"),
		InitialDelay:      c.Duration("retry-delay"),
		MaxDelay:          c.Duration("max-retry-delay"),
		BackoffMultiplier: 2,
		Workers:           c.Int("workers"),
		SkipExisting:      !c.Bool("reprocess"),
		Chunking: chunker.Params{
			TargetTokens: c.Int("target-tokens"),
			OverlapRatio: overlap,
		},
	}

	tracker := backfill.NewProgressTracker(os.Stderr)
	backfiller, err := archive.NewBackfiller(config,
		backfill.WithProgress(tracker.Callback()),
		backfill.WithErrorCallback(func(docID core.ID, err error) {
			fmt.Fprintf(os.Stderr, "document %d failed: %v\n", docID, err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create backfiller: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Chunk store: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Article archive: %s\n", c.String("articles"))
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(os.Stderr)

	result, err := backfiller.Run(ctx)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	elapsed := tracker.Elapsed().Round(time.Second)
	fmt.Fprintf(os.Stderr, "\nBackfill complete in %v: %s\n", elapsed, result.Summary())
	if stored, countErr := archive.ChunkRepository().CountChunks(ctx); countErr == nil {
		fmt.Fprintf(os.Stderr, "Chunks in store: %d\n", stored)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d documents failed", result.Failed)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}

	archive, err := openArchive(c)
	if err != nil {
		return err
	}
	defer archive.Close()

	searcher, err := archive.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	threshold := float32(c.Float64("threshold"))
	opts := &search.Options{
		Limit:       c.Int("limit"),
		Threshold:   &threshold,
		Rerank:      c.Bool("rerank"),
		RerankBoost: float32(c.Float64("rerank-boost")),
	}
	if essay := c.String("essay"); essay != "" {
		opts.MetadataFilter = map[string]string{"essay_slug": essay}
	}

	results, err := searcher.Search(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for i, result := range results {
		chunk := result.Record.Chunk
		fmt.Printf("%2d. score=%.3f doc=%d chunk=%d", i+1, result.Score, result.Record.DocumentId, chunk.Index)
		if chunk.Heading != "" {
			fmt.Printf(" [%s]", chunk.Heading)
		}
		if url := result.Record.Metadata["url"]; url != "" {
			fmt.Printf(" %s", url)
		}
		fmt.Println()
		fmt.Printf("    %s\n\n", excerpt(chunk.Content, 240))
	}
	return nil
}

func seedCommand(c *cli.Context) error {
	ctx := context.Background()

	body, err := readBody(c.Args().First())
	if err != nil {
		return err
	}

	articles, err := sqlite.OpenArticleSource(c.String("articles"))
	if err != nil {
		return fmt.Errorf("failed to open article archive: %w", err)
	}
	defer articles.Close()

	id, err := articles.StoreArticle(ctx, &core.Document{
		URL:        c.String("url"),
		Title:      c.String("title"),
		Body:       body,
		SourceDate: c.String("source-date"),
		EssaySlug:  c.String("essay"),
		Query:      c.String("query"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive article: %w", err)
	}

	fmt.Printf("archived %s as document %d\n", c.String("url"), id)
	return nil
}

func listCommand(c *cli.Context) error {
	ctx := context.Background()

	var opts []sqlite.Option
	if essay := c.String("essay"); essay != "" {
		opts = append(opts, sqlite.WithEssaySlug(essay))
	}

	articles, err := sqlite.OpenArticleSource(c.String("articles"), opts...)
	if err != nil {
		return fmt.Errorf("failed to open article archive: %w", err)
	}
	defer articles.Close()

	refs, err := articles.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list articles: %w", err)
	}

	for _, ref := range refs {
		title := ref.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%20d  %-50s %s\n", ref.Id, title, ref.URL)
	}
	fmt.Fprintf(os.Stderr, "%d articles\n", len(refs))
	return nil
}

// readBody reads the article body from a file, or stdin when no file is given.
func readBody(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read article body: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("article body is empty")
	}
	return string(data), nil
}

// excerpt trims content to at most n bytes on a rune boundary, collapsing
// newlines for single-line display.
func excerpt(content string, n int) string {
	flattened := strings.Join(strings.Fields(content), " ")
	if len(flattened) <= n {
		return flattened
	}
	cut := n
	for cut > 0 && !isRuneStart(flattened[cut]) {
		cut--
	}
	return flattened[:cut] + "…"
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
