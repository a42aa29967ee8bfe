// cmd/tools/catalog-cli/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"meddir-workers/internal/catalog"
	"meddir-workers/internal/catalog/store"
	"meddir-workers/internal/common/config"
	apperrors "meddir-workers/internal/common/errors"
	"meddir-workers/internal/common/logger"
	"meddir-workers/internal/models"
)

// Service is the catalog surface the CLI drives.
type Service interface {
	ListPlaces(ctx context.Context, p catalog.Params) (*models.Page[models.Place], error)
	ListPrograms(ctx context.Context, p catalog.Params) (*models.Page[models.Program], error)
	GetPlaceDetail(ctx context.Context, slug string) (*models.PlaceDetail, error)
	ComparePlaces(ctx context.Context, slugs []string) (*models.ComparisonTable, error)
}

// Seeder loads fixture records into a search index.
type Seeder interface {
	Index(ctx context.Context, catalogName string, records ...catalog.RawRecord) error
}

type app struct {
	service Service
	seeder  Seeder
	out     io.Writer
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" {
		help()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewZapAdapter(logger.NewWithOutput("warn", "console", "stderr"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	backend, err := store.OpenBackend(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening catalog store: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	a := &app{
		service: catalog.NewService(backend.Store, log, catalog.WithCatalogs(
			catalog.Places.WithLimits(cfg.Catalog.PlacesDefaultLimit, cfg.Catalog.MaxLimit),
			catalog.Programs.WithLimits(cfg.Catalog.ProgramsDefaultLimit, cfg.Catalog.MaxLimit),
		)),
		out: os.Stdout,
	}
	if backend.Search != nil {
		a.seeder = backend.Search
	}

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if stdErr, ok := apperrors.AsStandard(err); ok && !stdErr.Retryable {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "search":
		return a.search(ctx, args)
	case "detail":
		return a.detail(ctx, args)
	case "compare":
		return a.compare(ctx, args)
	case "seed":
		return a.seed(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	catalogName := fs.String("catalog", "places", "Catalog to search (places, programs)")
	query := fs.String("q", "", "Free-text search")
	typ := fs.String("type", "", "Type filter (school, rotation, residency)")
	institution := fs.String("institution", "", "Institution filter")
	limit := fs.Int("limit", 0, "Page size (0 uses the catalog default)")
	offset := fs.Int("offset", 0, "Results to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := catalog.Params{Search: *query, Type: *typ, Institution: *institution, Offset: offset}
	if *limit != 0 {
		params.Limit = limit
	}

	switch *catalogName {
	case catalog.Places.Name:
		page, err := a.service.ListPlaces(ctx, params)
		if err != nil {
			return err
		}
		return a.printJSON(page)
	case catalog.Programs.Name:
		page, err := a.service.ListPrograms(ctx, params)
		if err != nil {
			return err
		}
		return a.printJSON(page)
	default:
		return fmt.Errorf("unknown catalog %q", *catalogName)
	}
}

func (a *app) detail(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("detail", flag.ContinueOnError)
	slug := fs.String("slug", "", "Place slug")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *slug == "" && fs.NArg() > 0 {
		*slug = fs.Arg(0)
	}

	detail, err := a.service.GetPlaceDetail(ctx, *slug)
	if err != nil {
		return err
	}
	return a.printJSON(detail)
}

func (a *app) compare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	csvPath := fs.String("csv", "", "Write the table as CSV to this file, or - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	table, err := a.service.ComparePlaces(ctx, fs.Args())
	if err != nil {
		return err
	}

	switch *csvPath {
	case "":
		return a.printJSON(table)
	case "-":
		return catalog.WriteCSV(a.out, *table)
	default:
		f, err := os.Create(*csvPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", *csvPath, err)
		}
		if err := catalog.WriteCSV(f, *table); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Wrote comparison of %d places to %s\n", len(table.Columns), *csvPath)
		return nil
	}
}

func (a *app) seed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	path := fs.String("fixtures", "configs/fixtures/catalog.json", "Fixtures file to index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.seeder == nil {
		return errors.New("seed needs the elasticsearch backend")
	}

	fx, err := store.ReadFixturesFile(*path)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(fx))
	for name := range fx {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := a.seeder.Index(ctx, name, fx[name]...); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		fmt.Fprintf(a.out, "Indexed %d %s\n", len(fx[name]), name)
	}
	return nil
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func help() {
	fmt.Println(strings.TrimSpace(`
Usage: catalog-cli <command> [flags]

Commands:
  search   -catalog places|programs -q text -type t -institution i -limit n -offset n
  detail   -slug slug
  compare  [-csv file|-] slug1 slug2 [... slug5]
  seed     -fixtures file   (elasticsearch backend only)
`))
}
