// internal/models/program.go
package models

import (
	"encoding/json"
	"time"
)

// Program is an entry of the programs catalog: a named training program
// offered by a host institution.
type Program struct {
	ID          int64          `json:"id"`
	Slug        string         `json:"slug"`
	Type        string         `json:"type,omitempty"`
	ProgramName string         `json:"program_name"`
	Host        string         `json:"host"`
	Description string         `json:"description,omitempty"`
	Specialty   string         `json:"specialty,omitempty"`
	Location    Location       `json:"-"`
	Tags        []string       `json:"tags"`
	Metrics     map[string]any `json:"metrics"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (p Program) MarshalJSON() ([]byte, error) {
	type program Program
	out := struct {
		program
		City    string `json:"city"`
		State   string `json:"state"`
		Country string `json:"country"`
	}{
		program: program(p),
		City:    p.Location.City,
		State:   p.Location.State,
		Country: p.Location.Country,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.Metrics == nil {
		out.Metrics = map[string]any{}
	}
	return json.Marshal(out)
}
