// internal/models/detail.go
package models

type Guide struct {
	Overview   string `json:"overview"`
	Curriculum string `json:"curriculum"`
	Rotations  string `json:"rotations"`
	MatchNote  string `json:"matchNote"`
}

type ProsCons struct {
	Pros []string `json:"pros"`
	Cons []string `json:"cons"`
}

// PlaceDetail is what a single-record view renders.
type PlaceDetail struct {
	Place       Place    `json:"place"`
	Guide       Guide    `json:"guide"`
	ProsAndCons ProsCons `json:"prosAndCons"`
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// Page is one window of a catalog listing.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}
