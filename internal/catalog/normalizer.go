package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"meddir-workers/internal/models"
)

// RawRecord is a catalog row as the store hands it over: SQL scan output,
// an Elasticsearch _source document or a decoded JSON object.
type RawRecord map[string]any

// Report lists the fields of a record that could not be decoded and were
// replaced by their defaults.
type Report struct {
	Malformed []string
}

func (r *Report) flag(field string) {
	r.Malformed = append(r.Malformed, field)
}

// Degraded reports whether any field fell back to its default.
func (r Report) Degraded() bool {
	return len(r.Malformed) > 0
}

// Normalize converts a raw record into a Place. It never fails: tags,
// metrics and scores that are absent or undecodable become empty containers.
func Normalize(raw RawRecord) models.Place {
	p, _ := NormalizeWithReport(raw)
	return p
}

// NormalizeWithReport is Normalize plus the list of fields that were malformed.
func NormalizeWithReport(raw RawRecord) (models.Place, Report) {
	var rep Report

	p := models.Place{
		ID:          toInt64(raw["id"]),
		Slug:        toString(raw["slug"]),
		Type:        models.PlaceType(strings.ToLower(strings.TrimSpace(toString(raw["type"])))),
		Name:        toString(raw["name"]),
		Institution: toString(raw["institution"]),
		PhotoURL:    toString(raw["photo_url"]),
		Location:    location(raw),
		Tags:        decodeTags(raw["tags"], "tags", &rep),
		RankOverall: toIntPtr(raw["rank_overall"]),
		Metrics:     decodeMetrics(raw["metrics"], "metrics", &rep),
		Scores:      decodeScores(raw["scores"], "scores", &rep),
		CreatedAt:   toTime(raw["created_at"]),
		UpdatedAt:   toTime(raw["updated_at"]),
	}
	projectTuition(raw, p.Metrics)

	return p, rep
}

// NormalizeProgram converts a raw programs-catalog record.
func NormalizeProgram(raw RawRecord) (models.Program, Report) {
	var rep Report

	p := models.Program{
		ID:          toInt64(raw["id"]),
		Slug:        toString(raw["slug"]),
		Type:        toString(raw["type"]),
		ProgramName: toString(raw["program_name"]),
		Host:        toString(raw["host"]),
		Description: toString(raw["description"]),
		Specialty:   toString(raw["specialty"]),
		Location:    location(raw),
		Tags:        decodeTags(raw["tags"], "tags", &rep),
		Metrics:     decodeMetrics(raw["metrics"], "metrics", &rep),
		CreatedAt:   toTime(raw["created_at"]),
		UpdatedAt:   toTime(raw["updated_at"]),
	}

	return p, rep
}

// location prefers the flat triple and fills blanks from location_*.
func location(raw RawRecord) models.Location {
	pick := func(flat, prefixed string) string {
		if v := strings.TrimSpace(toString(raw[flat])); v != "" {
			return v
		}
		return strings.TrimSpace(toString(raw[prefixed]))
	}
	return models.Location{
		City:    pick("city", "location_city"),
		State:   pick("state", "location_state"),
		Country: pick("country", "location_country"),
	}
}

// projectTuition folds the top-level tuition convenience fields into metrics
// when metrics has no usable number for them. NUMERIC columns arrive as text.
func projectTuition(raw RawRecord, metrics map[string]any) {
	for _, key := range models.ProjectedMetricKeys {
		if _, ok := metrics[key].(float64); ok {
			continue
		}
		if v, ok := toNumber(raw[key]); ok {
			metrics[key] = v
		}
	}
}

// structured resolves the string-or-structure ambiguity of a JSON column.
// ok is false when the value is present but cannot be decoded.
func structured(v any) (out any, ok bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []byte:
		return structured(string(t))
	case json.RawMessage:
		return structured(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" || s == "null" {
			return nil, true
		}
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			return nil, false
		}
		if dec.More() {
			return nil, false
		}
		return out, true
	default:
		return v, true
	}
}

func decodeTags(v any, field string, rep *Report) []string {
	tags := []string{}

	if s, isString := textValue(v); isString && strings.HasPrefix(strings.TrimSpace(s), "{") {
		// Postgres text[] columns arrive as array literals.
		var arr pq.StringArray
		if err := arr.Scan(strings.TrimSpace(s)); err == nil {
			return appendTags(tags, stringsToAny(arr))
		}
	}

	decoded, ok := structured(v)
	if !ok {
		rep.flag(field)
		return tags
	}

	switch t := decoded.(type) {
	case nil:
		return tags
	case []any:
		return appendTags(tags, t)
	case []string:
		return appendTags(tags, stringsToAny(t))
	case pq.StringArray:
		return appendTags(tags, stringsToAny(t))
	default:
		rep.flag(field)
		return tags
	}
}

// appendTags keeps display order and drops blanks and case-insensitive repeats.
func appendTags(tags []string, items []any) []string {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, s)
	}
	return tags
}

func decodeMetrics(v any, field string, rep *Report) map[string]any {
	metrics := map[string]any{}

	decoded, ok := structured(v)
	if !ok {
		rep.flag(field)
		return metrics
	}

	src, isMap := asMap(decoded)
	if !isMap {
		if decoded != nil {
			rep.flag(field)
		}
		return metrics
	}

	for k, val := range src {
		if f, ok := numericText(val); ok {
			metrics[k] = f
			continue
		}
		if v, keep := canonicalValue(val); keep {
			metrics[k] = v
		}
	}
	return metrics
}

func decodeScores(v any, field string, rep *Report) map[string]float64 {
	scores := map[string]float64{}

	decoded, ok := structured(v)
	if !ok {
		rep.flag(field)
		return scores
	}

	switch src := decoded.(type) {
	case nil:
		return scores
	case map[string]float64:
		for k, val := range src {
			if finite(val) {
				scores[k] = val
			}
		}
		return scores
	}

	src, isMap := asMap(decoded)
	if !isMap {
		rep.flag(field)
		return scores
	}
	for k, val := range src {
		if f, ok := toNumber(val); ok {
			scores[k] = f
		}
	}
	return scores
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case RawRecord:
		return t, true
	case map[string]float64:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out, true
	}
	return nil, false
}

// canonicalValue turns every numeric kind into float64 and copies nested
// containers; anything else passes through untouched. keep is false for NaN
// and infinities, which have no JSON encoding.
func canonicalValue(v any) (out any, keep bool) {
	if f, ok := toFloat(v); ok {
		return f, true
	}
	switch t := v.(type) {
	case float64, float32:
		return nil, false
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			if c, ok := canonicalValue(val); ok {
				m[k] = c
			}
		}
		return m, true
	case []any:
		list := make([]any, 0, len(t))
		for _, val := range t {
			if c, ok := canonicalValue(val); ok {
				list = append(list, c)
			}
		}
		return list, true
	}
	return v, true
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func textValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	}
	return "", false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// toNumber is toFloat plus numeric text, as lib/pq returns NUMERIC columns.
func toNumber(v any) (float64, bool) {
	if f, ok := toFloat(v); ok {
		return f, true
	}
	return numericText(v)
}

// numericText parses a string or byte slice holding a finite decimal.
func numericText(v any) (float64, bool) {
	s, ok := textValue(v)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

// toFloat accepts finite numeric kinds only. Strings are not numbers here.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, finite(t)
	case float32:
		return float64(t), finite(float64(t))
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && finite(f)
	}
	return 0, false
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
	}
	if f, ok := toFloat(v); ok {
		return int64(f)
	}
	if s, ok := textValue(v); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func toIntPtr(v any) *int {
	f, ok := toFloat(v)
	if !ok {
		s, isText := textValue(v)
		if !isText {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil
		}
		f = float64(n)
	}
	n := int(f)
	return &n
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t != nil {
			return t.UTC()
		}
	case string, []byte:
		s, _ := textValue(t)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07", "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}
