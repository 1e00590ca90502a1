// Command graphragctl is a thin CLI over internal/engine: ingest documents,
// run a query, take or restore a backup, and inspect job status.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"graphrag/internal/config"
	"graphrag/internal/engine"
	"graphrag/internal/graphmodel"
	"graphrag/internal/query"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	configPath := os.Getenv("GRAPHRAG_CONFIG")
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "ingest":
		runIngest(configPath, args)
	case "query":
		runQuery(configPath, args)
	case "backup":
		runBackup(configPath, args)
	case "restore":
		runRestore(configPath, args)
	case "job":
		runJob(configPath, args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: graphragctl <command> [flags]

commands:
  ingest   -file <path> [-id <doc-id>]      ingest a document, prints the job id
  query    -mode local|global|naive -q <question>
  backup   -out <path.ngbak>
  restore  -archive <path.ngbak> -dest <dir>
  job      -id <job-id>                      show a job's status`)
}

func newEngine(ctx context.Context, configPath string) *engine.Engine {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		log.Fatalf("start engine: %v", err)
	}
	return e
}

func runIngest(configPath string, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := fs.String("file", "", "path to the document to ingest (use -stdin to read from STDIN)")
	stdin := fs.Bool("stdin", false, "read document content from STDIN")
	id := fs.String("id", "", "document id (defaults to the -file path)")
	url := fs.String("url", "", "source URL, used as the HTML preprocessing base and for metadata")
	fs.Parse(args)

	var content []byte
	var err error
	switch {
	case *stdin:
		content, err = io.ReadAll(os.Stdin)
	case *file != "":
		content, err = os.ReadFile(*file)
	default:
		log.Fatal("ingest: one of -file or -stdin is required")
	}
	if err != nil {
		log.Fatalf("ingest: read input: %v", err)
	}

	docID := *id
	if docID == "" {
		docID = *file
	}
	if docID == "" {
		log.Fatal("ingest: -id is required when reading from -stdin")
	}

	ctx := context.Background()
	e := newEngine(ctx, configPath)
	defer e.Close()

	doc := graphmodel.Document{ID: docID, Content: string(content), CreatedAt: time.Now()}
	if *url != "" {
		doc.Metadata = map[string]string{"url": *url}
	}

	jobID, err := e.Ingest(ctx, []graphmodel.Document{doc})
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}
	fmt.Println(jobID)
}

func runQuery(configPath string, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	mode := fs.String("mode", "local", "local|global|naive")
	question := fs.String("q", "", "question to ask")
	maxLevel := fs.Int("max-level", 0, "global mode: highest community level to consider")
	fs.Parse(args)

	if *question == "" {
		log.Fatal("query: -q is required")
	}

	ctx := context.Background()
	e := newEngine(ctx, configPath)
	defer e.Close()

	resp, err := e.Query(ctx, query.Request{
		Mode:     query.Mode(*mode),
		Question: *question,
		MaxLevel: *maxLevel,
	})
	if err != nil {
		log.Fatalf("query: %v", err)
	}
	fmt.Println(resp.Answer)
}

func runBackup(configPath string, args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	out := fs.String("out", "backup.ngbak", "archive destination path")
	fs.Parse(args)

	ctx := context.Background()
	e := newEngine(ctx, configPath)
	defer e.Close()

	manifest, err := e.Backup(ctx, *out)
	if err != nil {
		log.Fatalf("backup: %v", err)
	}
	raw, _ := json.MarshalIndent(manifest, "", "  ")
	fmt.Println(string(raw))
}

func runRestore(configPath string, args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	archive := fs.String("archive", "", "archive path to restore")
	dest := fs.String("dest", "", "destination directory")
	fs.Parse(args)

	if *archive == "" || *dest == "" {
		log.Fatal("restore: -archive and -dest are required")
	}

	ctx := context.Background()
	e := newEngine(ctx, configPath)
	defer e.Close()

	manifest, err := e.Restore(ctx, *archive, *dest)
	if err != nil {
		log.Fatalf("restore: %v", err)
	}
	raw, _ := json.MarshalIndent(manifest, "", "  ")
	fmt.Println(string(raw))
}

func runJob(configPath string, args []string) {
	fs := flag.NewFlagSet("job", flag.ExitOnError)
	id := fs.String("id", "", "job id")
	fs.Parse(args)

	if *id == "" {
		log.Fatal("job: -id is required")
	}

	ctx := context.Background()
	e := newEngine(ctx, configPath)
	defer e.Close()

	j, ok, err := e.Jobs().Get(ctx, *id)
	if err != nil {
		log.Fatalf("job: %v", err)
	}
	if !ok {
		log.Fatalf("job: no such job %s", *id)
	}
	raw, _ := json.MarshalIndent(j, "", "  ")
	fmt.Println(string(raw))
}
