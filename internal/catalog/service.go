package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "meddir-workers/internal/common/errors"
	"meddir-workers/internal/common/logger"
	"meddir-workers/internal/common/metrics"
	"meddir-workers/internal/models"
)

const tracerName = "meddir-workers/catalog"

// Service answers listing, detail and comparison requests. Every record read
// from the store passes through the normalizer exactly once, here.
type Service struct {
	store    Store
	places   Catalog
	programs Catalog
	logger   logger.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

// WithCatalogs overrides the place and program catalog descriptors.
func WithCatalogs(places, programs Catalog) Option {
	return func(s *Service) {
		s.places = places
		s.programs = programs
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func NewService(store Store, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		places:   Places,
		programs: Programs,
		logger:   log.WithFields(map[string]interface{}{"component": "catalog"}),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPlaces returns one page of places matching p.
func (s *Service) ListPlaces(ctx context.Context, p Params) (*models.Page[models.Place], error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ListPlaces", trace.WithAttributes(paramAttributes(p)...))
	defer span.End()

	q, err := BuildQuery(s.places, p)
	if err != nil {
		return nil, failSpan(span, err)
	}

	records, total, err := s.find(ctx, "list_places", q)
	if err != nil {
		return nil, failSpan(span, err)
	}

	items := make([]models.Place, 0, len(records))
	for _, r := range records {
		items = append(items, s.normalizePlace(r))
	}

	span.SetAttributes(attribute.Int("catalog.total", total), attribute.Int("catalog.returned", len(items)))
	return &models.Page[models.Place]{Items: items, Pagination: NewPagination(total, q.Window)}, nil
}

// ListPrograms returns one page of the programs catalog.
func (s *Service) ListPrograms(ctx context.Context, p Params) (*models.Page[models.Program], error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ListPrograms", trace.WithAttributes(paramAttributes(p)...))
	defer span.End()

	q, err := BuildQuery(s.programs, p)
	if err != nil {
		return nil, failSpan(span, err)
	}

	records, total, err := s.find(ctx, "list_programs", q)
	if err != nil {
		return nil, failSpan(span, err)
	}

	items := make([]models.Program, 0, len(records))
	for _, r := range records {
		prog, rep := NormalizeProgram(r)
		s.reportMalformed(s.programs.Name, prog.Slug, rep)
		items = append(items, prog)
	}

	span.SetAttributes(attribute.Int("catalog.total", total), attribute.Int("catalog.returned", len(items)))
	return &models.Page[models.Program]{Items: items, Pagination: NewPagination(total, q.Window)}, nil
}

// GetPlaceDetail loads one place by slug with its derived guide and pros/cons.
func (s *Service) GetPlaceDetail(ctx context.Context, slug string) (*models.PlaceDetail, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.GetPlaceDetail", trace.WithAttributes(attribute.String("place.slug", slug)))
	defer span.End()

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, failSpan(span, apperrors.NewValidationFailedError("slug", "slug is required"))
	}

	places, err := s.placesBySlug(ctx, "get_place", []string{slug})
	if err != nil {
		return nil, failSpan(span, err)
	}

	place, ok := places[slug]
	if !ok {
		return nil, failSpan(span, apperrors.NewPlaceNotFoundError(slug))
	}

	return &models.PlaceDetail{
		Place:       place,
		Guide:       DeriveGuide(place),
		ProsAndCons: DeriveProsCons(place),
	}, nil
}

// ComparePlaces loads the named places and aligns them in request order.
func (s *Service) ComparePlaces(ctx context.Context, slugs []string) (*models.ComparisonTable, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ComparePlaces", trace.WithAttributes(attribute.StringSlice("place.slugs", slugs)))
	defer span.End()

	cleaned, err := validateComparisonSet(slugs)
	if err != nil {
		return nil, failSpan(span, err)
	}

	found, err := s.placesBySlug(ctx, "compare_places", cleaned)
	if err != nil {
		return nil, failSpan(span, err)
	}

	ordered := make([]models.Place, 0, len(cleaned))
	var missing []string
	for _, slug := range cleaned {
		p, ok := found[slug]
		if !ok {
			missing = append(missing, slug)
			continue
		}
		ordered = append(ordered, p)
	}
	if len(missing) > 0 {
		return nil, failSpan(span, apperrors.NewPlaceNotFoundError(missing...))
	}

	table, err := Compare(ordered)
	if err != nil {
		return nil, failSpan(span, err)
	}
	return &table, nil
}

// validateComparisonSet checks size and uniqueness before any store call.
func validateComparisonSet(slugs []string) ([]string, error) {
	if len(slugs) < MinComparePlaces || len(slugs) > MaxComparePlaces {
		return nil, apperrors.NewValidationFailedError("slugs",
			fmt.Sprintf("comparison needs %d to %d places, got %d", MinComparePlaces, MaxComparePlaces, len(slugs)))
	}

	cleaned := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	for i, slug := range slugs {
		slug = strings.TrimSpace(slug)
		if slug == "" {
			return nil, apperrors.NewValidationFailedError("slugs", fmt.Sprintf("slugs[%d] is empty", i))
		}
		if _, dup := seen[slug]; dup {
			return nil, apperrors.NewValidationFailedError("slugs", fmt.Sprintf("slug %q is listed twice", slug))
		}
		seen[slug] = struct{}{}
		cleaned = append(cleaned, slug)
	}
	return cleaned, nil
}

func (s *Service) placesBySlug(ctx context.Context, op string, slugs []string) (map[string]models.Place, error) {
	records, _, err := s.find(ctx, op, lookupBySlugs(s.places, slugs))
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.Place, len(records))
	for _, r := range records {
		p := s.normalizePlace(r)
		if _, dup := out[p.Slug]; !dup {
			out[p.Slug] = p
		}
	}
	return out, nil
}

// find calls the store and maps any failure to a single upstream error.
func (s *Service) find(ctx context.Context, op string, q Query) ([]RawRecord, int, error) {
	start := time.Now()
	records, total, err := s.store.Find(ctx, q)
	metrics.CatalogQueryDuration.WithLabelValues(q.Catalog.Name, op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CatalogQueryErrors.WithLabelValues(q.Catalog.Name, op).Inc()
		s.logger.Error("catalog store call failed", map[string]interface{}{
			"operation": op,
			"catalog":   q.Catalog.Name,
			"error":     err,
		})
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, 0, apperrors.NewUpstreamTimeoutError(op, err)
		}
		return nil, 0, apperrors.NewUpstreamUnavailableError(op, err)
	}
	return records, total, nil
}

func (s *Service) normalizePlace(r RawRecord) models.Place {
	p, rep := NormalizeWithReport(r)
	s.reportMalformed(s.places.Name, p.Slug, rep)
	return p
}

func (s *Service) reportMalformed(catalogName, slug string, rep Report) {
	if !rep.Degraded() {
		return
	}
	for _, field := range rep.Malformed {
		metrics.CatalogMalformedFields.WithLabelValues(catalogName, field).Inc()
	}
	s.logger.Warn("record has malformed fields, defaults substituted", map[string]interface{}{
		"catalog": catalogName,
		"slug":    slug,
		"fields":  rep.Malformed,
	})
}

func paramAttributes(p Params) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("catalog.search", p.Search),
		attribute.String("catalog.type", p.Type),
		attribute.String("catalog.institution", p.Institution),
	}
	if p.Limit != nil {
		attrs = append(attrs, attribute.Int("catalog.limit", *p.Limit))
	}
	if p.Offset != nil {
		attrs = append(attrs, attribute.Int("catalog.offset", *p.Offset))
	}
	return attrs
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
