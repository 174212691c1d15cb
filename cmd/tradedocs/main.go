package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/internal/app"
	"github.com/joseph-ayodele/tradedocs/internal/async"
	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/documents"
)

const usage = `usage: tradedocs <command> [flags]

commands:
  upload    -owner UUID -type DOC_TYPE [-metadata FILE] -file field=ref ...
  approve   -doc UUID -actor UUID [-comment TEXT]
  reject    -doc UUID -actor UUID [-comment TEXT]
  validate  -doc UUID -actor UUID
  reprocess -file-id UUID
  list      [-owner UUID] [-status STATUS]
  show      -doc UUID
  comments  -doc UUID
  convert   -from CURRENCY -amount AMOUNT
  stats     [-owner UUID]
  export    -doc UUID -out FILE.xlsx
`

// stdout receives command output.
var stdout io.Writer = os.Stdout

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// fileRefs collects repeated -file field=ref flags.
type fileRefs map[string]string

func (f fileRefs) String() string { return fmt.Sprint(map[string]string(f)) }

func (f fileRefs) Set(v string) error {
	field, ref, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(field) == "" || strings.TrimSpace(ref) == "" {
		return fmt.Errorf("expected field=ref, got %q", v)
	}
	f[strings.TrimSpace(field)] = strings.TrimSpace(ref)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printError(usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}
	logger := app.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err := run(ctx, a, cmd, args); err != nil {
		if fields, ok := documents.IsMissingFiles(err); ok {
			printError("Error: missing required files: %s\n", strings.Join(fields, ", "))
		} else {
			printError("Error: %v\n", err)
		}
		code = 1
	}
	a.Close()
	stop()
	os.Exit(code)
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "upload":
		return upload(ctx, a, args)
	case "approve", "reject":
		return decide(ctx, a, cmd, args)
	case "validate":
		return validate(ctx, a, args)
	case "reprocess":
		return reprocess(ctx, a, args)
	case "list":
		return list(ctx, a, args)
	case "show":
		return show(ctx, a, args)
	case "comments":
		return comments(ctx, a, args)
	case "convert":
		return convert(ctx, a, args)
	case "stats":
		return stats(ctx, a, args)
	case "export":
		return exportXLSX(ctx, a, args)
	default:
		printError(usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// withQueue runs fn with a started queue and drains it before returning, so
// an in-memory queue finishes the jobs fn submitted.
func withQueue(ctx context.Context, a *app.App, fn func(q async.Queue) error) error {
	q, err := a.NewQueue(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Queue.ProcessTimeout+10*time.Second)
		defer cancel()
		q.Shutdown(shutdownCtx)
	}()
	return fn(q)
}

func upload(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	owner := fs.String("owner", "", "owner id (UUID)")
	docType := fs.String("type", "", "invoice | packing_list | bol_awb | delivery_order")
	mdPath := fs.String("metadata", "", "JSON metadata file")
	files := fileRefs{}
	fs.Var(files, "file", "field=ref, repeatable")
	_ = fs.Parse(args)

	ownerID, err := uuid.Parse(*owner)
	if err != nil {
		return fmt.Errorf("invalid -owner: %w", err)
	}
	var md []byte
	if *mdPath != "" {
		if md, err = os.ReadFile(*mdPath); err != nil {
			return err
		}
	}

	ctx = common.WithTraceID(ctx, uuid.NewString())
	return withQueue(ctx, a, func(q async.Queue) error {
		svc, err := a.Documents(q)
		if err != nil {
			return err
		}
		res, err := svc.Upload(ctx, documents.UploadRequest{
			OwnerID:  ownerID,
			DocType:  *docType,
			Metadata: md,
			Files:    files,
		})
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func decide(ctx context.Context, a *app.App, action string, args []string) error {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	doc := fs.String("doc", "", "document id (UUID)")
	actor := fs.String("actor", "", "acting user (UUID)")
	comment := fs.String("comment", "", "optional comment")
	_ = fs.Parse(args)

	docID, actorID, err := parseDocActor(*doc, *actor)
	if err != nil {
		return err
	}
	svc, err := a.Documents(nil)
	if err != nil {
		return err
	}
	updated, err := svc.Decide(ctx, docID, actorID, action, *comment)
	if err != nil {
		return err
	}
	return printJSON(updated)
}

func validate(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	doc := fs.String("doc", "", "document id (UUID)")
	actor := fs.String("actor", "", "acting user (UUID)")
	_ = fs.Parse(args)

	docID, actorID, err := parseDocActor(*doc, *actor)
	if err != nil {
		return err
	}
	svc, err := a.Documents(nil)
	if err != nil {
		return err
	}
	report, err := svc.RunValidation(ctx, docID, actorID)
	if report != nil {
		if perr := printJSON(report); perr != nil {
			return perr
		}
	}
	return err
}

func reprocess(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("reprocess", flag.ExitOnError)
	file := fs.String("file-id", "", "document file id (UUID)")
	_ = fs.Parse(args)

	fileID, err := uuid.Parse(*file)
	if err != nil {
		return fmt.Errorf("invalid -file-id: %w", err)
	}
	return withQueue(ctx, a, func(q async.Queue) error {
		return q.Enqueue(ctx, async.Job{FileID: fileID, Force: true})
	})
}

func list(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	owner := fs.String("owner", "", "only this owner (UUID)")
	status := fs.String("status", "", "only this status")
	_ = fs.Parse(args)

	ownerID, err := parseOwner(*owner)
	if err != nil {
		return err
	}
	svc, err := a.Documents(nil)
	if err != nil {
		return err
	}
	docs, err := svc.List(ctx, ownerID, *status)
	if err != nil {
		return err
	}
	return printJSON(docs)
}

func show(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	doc := fs.String("doc", "", "document id (UUID)")
	_ = fs.Parse(args)

	docID, err := uuid.Parse(*doc)
	if err != nil {
		return fmt.Errorf("invalid -doc: %w", err)
	}
	svc, err := a.Documents(nil)
	if err != nil {
		return err
	}
	detail, err := svc.Detail(ctx, docID)
	if err != nil {
		return err
	}
	return printJSON(detail)
}

func comments(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("comments", flag.ExitOnError)
	doc := fs.String("doc", "", "document id (UUID)")
	_ = fs.Parse(args)

	docID, err := uuid.Parse(*doc)
	if err != nil {
		return fmt.Errorf("invalid -doc: %w", err)
	}
	svc, err := a.Documents(nil)
	if err != nil {
		return err
	}
	out, err := svc.Comments(ctx, docID)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func convert(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	from := fs.String("from", "", "source currency code")
	amount := fs.String("amount", "", "amount in the source currency")
	_ = fs.Parse(args)

	svc, err := a.Documents(nil)
	if err != nil {
		return err
	}
	c, err := svc.Convert(ctx, *from, *amount)
	if err != nil {
		return err
	}
	return printJSON(c)
}

func stats(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	owner := fs.String("owner", "", "only this owner (UUID)")
	_ = fs.Parse(args)

	ownerID, err := parseOwner(*owner)
	if err != nil {
		return err
	}
	svc, err := a.Documents(nil)
	if err != nil {
		return err
	}
	st, err := svc.Stats(ctx, ownerID)
	if err != nil {
		return err
	}
	return printJSON(st)
}

func exportXLSX(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	doc := fs.String("doc", "", "document id (UUID)")
	out := fs.String("out", "", "output XLSX path")
	_ = fs.Parse(args)

	docID, err := uuid.Parse(*doc)
	if err != nil {
		return fmt.Errorf("invalid -doc: %w", err)
	}
	if *out == "" {
		*out = fmt.Sprintf("validations-%s.xlsx", docID)
	}
	data, err := a.Export().ExportValidationsXLSX(ctx, docID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", *out, len(data))
	return err
}

func parseOwner(owner string) (*uuid.UUID, error) {
	if owner == "" {
		return nil, nil
	}
	id, err := uuid.Parse(owner)
	if err != nil {
		return nil, fmt.Errorf("invalid -owner: %w", err)
	}
	return &id, nil
}

func parseDocActor(doc, actor string) (uuid.UUID, uuid.UUID, error) {
	docID, err := uuid.Parse(doc)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid -doc: %w", err)
	}
	actorID, err := uuid.Parse(actor)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid -actor: %w", err)
	}
	if actorID == uuid.Nil {
		return uuid.Nil, uuid.Nil, errors.New("-actor must not be the nil UUID")
	}
	return docID, actorID, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
