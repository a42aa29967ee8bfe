package catalog

import (
	"fmt"
	"strings"

	"meddir-workers/internal/models"
)

// Tags that drive derivation.
const (
	TagResearchHeavy = "research-heavy"
	TagUrban         = "urban"
)

// Score and metric keys read by the rules below.
const (
	ScoreQualityOfTraining = "quality_of_training"
	ScoreBurnout           = "burnout"
	ScoreCommunity         = "community_score"
	ScoreMatchStrength     = "match_strength"
)

// Thresholds and the values assumed when a record lacks the input.
const (
	QualityOfTrainingThreshold = 8.0
	QualityOfTrainingDefault   = 7.0

	TuitionFree              = 0.0
	AffordableTuitionCeiling = 40000.0
	TuitionDefault           = 0.0

	BurnoutThreshold = 6.0
	BurnoutDefault   = 4.0

	CostOfLivingThreshold = 3500.0
	CostOfLivingDefault   = 2500.0

	CommunityThreshold = 7.0
	CommunityDefault   = 7.0

	MatchStrengthThreshold = 8.0
	MatchStrengthDefault   = 7.0
)

// Source says where a rule reads its input from.
type Source int

const (
	FromScore Source = iota
	FromMetric
	// FromTag reads 1 when the place carries the tag and 0 otherwise.
	FromTag
)

type Comparison int

const (
	AtLeast Comparison = iota
	Above
	Below
	EqualTo
)

func (c Comparison) holds(v, threshold float64) bool {
	switch c {
	case AtLeast:
		return v >= threshold
	case Above:
		return v > threshold
	case Below:
		return v < threshold
	case EqualTo:
		return v == threshold
	}
	return false
}

// Band labels the input when Cmp holds against Threshold.
type Band struct {
	Cmp       Comparison
	Threshold float64
	Label     string
}

// Rule maps one input to one label: the first band that holds wins, else
// Otherwise.
type Rule struct {
	Name      string
	Source    Source
	Key       string
	Default   float64
	Bands     []Band
	Otherwise string
}

func (r Rule) input(p models.Place) float64 {
	switch r.Source {
	case FromScore:
		if v, ok := p.Score(r.Key); ok {
			return v
		}
	case FromMetric:
		if v, ok := p.Metric(r.Key); ok {
			return v
		}
	case FromTag:
		if hasTag(p.Tags, r.Key) {
			return 1
		}
		return 0
	}
	return r.Default
}

// Apply returns the label for p.
func (r Rule) Apply(p models.Place) string {
	v := r.input(p)
	for _, b := range r.Bands {
		if b.Cmp.holds(v, b.Threshold) {
			return b.Label
		}
	}
	return r.Otherwise
}

func tagRule(name, tag, present, absent string) Rule {
	return Rule{
		Name:      name,
		Source:    FromTag,
		Key:       tag,
		Bands:     []Band{{Cmp: AtLeast, Threshold: 1, Label: present}},
		Otherwise: absent,
	}
}

// ProRules produce the pros list, in display order.
var ProRules = []Rule{
	tagRule("setting", TagUrban,
		"Urban location with diverse patient population",
		"Suburban setting with a close-knit community"),
	{
		Name:      "training",
		Source:    FromScore,
		Key:       ScoreQualityOfTraining,
		Default:   QualityOfTrainingDefault,
		Bands:     []Band{{Cmp: AtLeast, Threshold: QualityOfTrainingThreshold, Label: "Excellent clinical training"}},
		Otherwise: "Solid clinical foundation",
	},
	{
		// Top-level tuition is folded into metrics by the normalizer.
		Name:    "tuition",
		Source:  FromMetric,
		Key:     models.MetricTuition,
		Default: TuitionDefault,
		Bands: []Band{
			{Cmp: EqualTo, Threshold: TuitionFree, Label: "Tuition-free education"},
			{Cmp: Below, Threshold: AffordableTuitionCeiling, Label: "Affordable tuition"},
		},
		Otherwise: "Comprehensive financial aid available",
	},
}

// ConRules produce the cons list, in display order.
var ConRules = []Rule{
	{
		Name:      "burnout",
		Source:    FromScore,
		Key:       ScoreBurnout,
		Default:   BurnoutDefault,
		Bands:     []Band{{Cmp: AtLeast, Threshold: BurnoutThreshold, Label: "Higher stress environment"}},
		Otherwise: "Demanding but manageable workload",
	},
	{
		Name:      "cost_of_living",
		Source:    FromMetric,
		Key:       models.MetricColIndex,
		Default:   CostOfLivingDefault,
		Bands:     []Band{{Cmp: Above, Threshold: CostOfLivingThreshold, Label: "High cost of living"}},
		Otherwise: "Moderate cost of living",
	},
	{
		Name:      "community",
		Source:    FromScore,
		Key:       ScoreCommunity,
		Default:   CommunityDefault,
		Bands:     []Band{{Cmp: Below, Threshold: CommunityThreshold, Label: "Limited sense of community"}},
		Otherwise: "Competitive peer culture",
	},
}

var (
	focusRule = tagRule("focus", TagResearchHeavy, "research excellence", "clinical training")

	rotationsRule = tagRule("rotations", TagUrban,
		"Rotations run through high-volume urban hospitals with a broad case mix.",
		"Rotations run through community hospitals with close attending supervision.")

	matchRule = Rule{
		Name:      "match",
		Source:    FromScore,
		Key:       ScoreMatchStrength,
		Default:   MatchStrengthDefault,
		Bands:     []Band{{Cmp: AtLeast, Threshold: MatchStrengthThreshold, Label: "Graduates match strongly into competitive residencies."}},
		Otherwise: "Graduates match steadily across a range of specialties.",
	}
)

var curriculumByType = map[models.PlaceType]string{
	models.PlaceTypeSchool:    "Two preclinical years build the science foundation before core clerkships.",
	models.PlaceTypeRotation:  "Students join care teams for hands-on clinical work under attending physicians.",
	models.PlaceTypeResidency: "Residents take on progressive patient responsibility across the training years.",
}

const defaultCurriculum = "The program combines structured teaching with supervised clinical practice."

var typeNoun = map[models.PlaceType]string{
	models.PlaceTypeSchool:    "medical school",
	models.PlaceTypeRotation:  "clinical rotation site",
	models.PlaceTypeResidency: "residency program",
}

// DeriveGuide builds the narrative section of a detail view.
func DeriveGuide(p models.Place) models.Guide {
	noun, ok := typeNoun[p.Type]
	if !ok {
		noun = "medical institution"
	}
	name := p.Name
	if name == "" {
		name = "This institution"
	}

	overview := fmt.Sprintf("%s is a %s known for its %s", name, noun, focusRule.Apply(p))
	if where := placeLabel(p.Location); where != "" {
		overview += " in " + where
	}
	overview += "."

	curriculum, ok := curriculumByType[p.Type]
	if !ok {
		curriculum = defaultCurriculum
	}

	return models.Guide{
		Overview:   overview,
		Curriculum: curriculum,
		Rotations:  rotationsRule.Apply(p),
		MatchNote:  matchRule.Apply(p),
	}
}

// DeriveProsCons applies ProRules and ConRules in order.
func DeriveProsCons(p models.Place) models.ProsCons {
	pc := models.ProsCons{
		Pros: make([]string, 0, len(ProRules)),
		Cons: make([]string, 0, len(ConRules)),
	}
	for _, r := range ProRules {
		pc.Pros = append(pc.Pros, r.Apply(p))
	}
	for _, r := range ConRules {
		pc.Cons = append(pc.Cons, r.Apply(p))
	}
	return pc
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

func placeLabel(l models.Location) string {
	parts := make([]string, 0, 2)
	if l.City != "" {
		parts = append(parts, l.City)
	}
	if l.State != "" {
		parts = append(parts, l.State)
	} else if l.Country != "" {
		parts = append(parts, l.Country)
	}
	return strings.Join(parts, ", ")
}
