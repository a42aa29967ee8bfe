// internal/models/place.go
package models

import (
	"encoding/json"
	"time"
)

type PlaceType string

const (
	PlaceTypeSchool    PlaceType = "school"
	PlaceTypeRotation  PlaceType = "rotation"
	PlaceTypeResidency PlaceType = "residency"
)

// PlaceTypes lists every accepted place classification.
var PlaceTypes = []PlaceType{PlaceTypeSchool, PlaceTypeRotation, PlaceTypeResidency}

func (t PlaceType) Valid() bool {
	for _, pt := range PlaceTypes {
		if t == pt {
			return true
		}
	}
	return false
}

// Location is held once in memory. The legacy location_* triple is emitted
// from it when a record is encoded, so the two can never disagree.
type Location struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Metric keys that older consumers also read as top-level fields.
const (
	MetricTuition         = "tuition"
	MetricTuitionInState  = "tuition_in_state"
	MetricTuitionOutState = "tuition_out_state"
	MetricColIndex        = "col_index"
)

// ProjectedMetricKeys are mirrored between metrics and the top level of a
// record. The mirror is computed on read and encode, never stored twice.
var ProjectedMetricKeys = []string{MetricTuition, MetricTuitionInState, MetricTuitionOutState}

type Place struct {
	ID          int64              `json:"id"`
	Slug        string             `json:"slug"`
	Type        PlaceType          `json:"type"`
	Name        string             `json:"name"`
	Institution string             `json:"institution,omitempty"`
	PhotoURL    string             `json:"photo_url,omitempty"`
	Location    Location           `json:"-"`
	Tags        []string           `json:"tags"`
	RankOverall *int               `json:"rank_overall,omitempty"`
	Metrics     map[string]any     `json:"metrics"`
	Scores      map[string]float64 `json:"scores"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Metric returns a numeric metric and whether it was present as a number.
func (p Place) Metric(key string) (float64, bool) {
	v, ok := p.Metrics[key].(float64)
	return v, ok
}

// Score returns a score and whether it was present.
func (p Place) Score(key string) (float64, bool) {
	v, ok := p.Scores[key]
	return v, ok
}

func (p Place) MarshalJSON() ([]byte, error) {
	type place Place
	out := struct {
		place
		City            string   `json:"city"`
		State           string   `json:"state"`
		Country         string   `json:"country"`
		LocationCity    string   `json:"location_city"`
		LocationState   string   `json:"location_state"`
		LocationCountry string   `json:"location_country"`
		Tuition         *float64 `json:"tuition,omitempty"`
		TuitionInState  *float64 `json:"tuition_in_state,omitempty"`
		TuitionOutState *float64 `json:"tuition_out_state,omitempty"`
	}{
		place:           place(p),
		City:            p.Location.City,
		State:           p.Location.State,
		Country:         p.Location.Country,
		LocationCity:    p.Location.City,
		LocationState:   p.Location.State,
		LocationCountry: p.Location.Country,
	}
	if v, ok := p.Metric(MetricTuition); ok {
		out.Tuition = &v
	}
	if v, ok := p.Metric(MetricTuitionInState); ok {
		out.TuitionInState = &v
	}
	if v, ok := p.Metric(MetricTuitionOutState); ok {
		out.TuitionOutState = &v
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.Metrics == nil {
		out.Metrics = map[string]any{}
	}
	if out.Scores == nil {
		out.Scores = map[string]float64{}
	}
	return json.Marshal(out)
}
