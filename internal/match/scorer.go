package match

import (
	"math"
	"strings"

	"github.com/refind-app/refind/internal/storage"
)

// Weights maps each comparable field to its share of the total score.
// The defaults sum to 1.0 and are process-wide, read-only configuration.
type Weights struct {
	Category      float64
	Location      float64
	Description   float64
	Color         float64
	Brand         float64
	Size          float64
	DateRange     float64
	AIDescription float64
	ImageMatch    float64
}

// DefaultWeights is the tuned weight table for community-scale matching.
var DefaultWeights = Weights{
	Category:      0.20,
	Location:      0.15,
	Description:   0.15,
	Color:         0.08,
	Brand:         0.08,
	Size:          0.04,
	DateRange:     0.10,
	AIDescription: 0.10,
	ImageMatch:    0.10,
}

// MinimumMatchScore is the discovery threshold: pairs scoring below it are
// never promoted to match records.
const MinimumMatchScore = 0.6

// Per-field thresholds above which a field is recorded in matchedFields.
const (
	descriptionMatchThreshold   = 0.3
	aiDescriptionMatchThreshold = 0.4 // higher bar: AI descriptions are denser text
	imageMatchThreshold         = 0.7
	dateRangeMatchThreshold     = 0.5 // roughly within 3.5 days
	dateRangeWindowDays         = 7.0
)

// Eligible reports whether an item carries the fields required for scoring.
// Partial reports are common; an ineligible item is skipped, not an error.
func Eligible(item storage.Item) bool {
	return item.Category != "" && item.Location != "" && item.Description != ""
}

// Score computes the weighted similarity of a lost/found pair and the
// ordered list of fields whose own criterion was met. The score is the
// accumulated weighted sum capped at 1.0; the field list is informational
// and does not feed back into the score.
func Score(lost, found storage.Item, w Weights) (float64, []string) {
	var score float64
	var fields []string

	// Category: exact, case-insensitive.
	if strings.EqualFold(lost.Category, found.Category) {
		score += w.Category
		fields = append(fields, "category")
	}

	// Location: substring containment either way, so "Library" still matches
	// "Library Building, 2nd Floor".
	if containsFold(lost.Location, found.Location) || containsFold(found.Location, lost.Location) {
		score += w.Location
		fields = append(fields, "location")
	}

	// Description keyword overlap.
	descSim := Similarity(Keywords(lost.Description), Keywords(found.Description))
	score += w.Description * descSim
	if descSim > descriptionMatchThreshold {
		fields = append(fields, "description")
	}

	// AI-enhanced descriptions, only when both sides have one.
	if lost.AIDescription != "" && found.AIDescription != "" {
		aiSim := Similarity(Keywords(lost.AIDescription), Keywords(found.AIDescription))
		score += w.AIDescription * aiSim
		if aiSim > aiDescriptionMatchThreshold {
			fields = append(fields, "aiDescription")
		}
	}

	// Image embeddings, only when both sides have one.
	if len(lost.Embedding) > 0 && len(found.Embedding) > 0 {
		imgSim := Cosine(lost.Embedding, found.Embedding)
		score += w.ImageMatch * imgSim
		if imgSim > imageMatchThreshold {
			fields = append(fields, "imageMatch")
		}
	}

	// Structured attributes: exact, case-insensitive, both sides present.
	if lost.Color != "" && found.Color != "" && strings.EqualFold(lost.Color, found.Color) {
		score += w.Color
		fields = append(fields, "color")
	}
	if lost.Brand != "" && found.Brand != "" && strings.EqualFold(lost.Brand, found.Brand) {
		score += w.Brand
		fields = append(fields, "brand")
	}
	if lost.Size != "" && found.Size != "" && strings.EqualFold(lost.Size, found.Size) {
		score += w.Size
		fields = append(fields, "size")
	}

	// Temporal proximity: linear falloff over a 7-day window.
	daysApart := math.Abs(lost.DateOccurred.Sub(found.DateOccurred).Hours() / 24)
	if daysApart <= dateRangeWindowDays {
		dateScore := math.Max(0, 1-daysApart/dateRangeWindowDays)
		score += w.DateRange * dateScore
		if dateScore > dateRangeMatchThreshold {
			fields = append(fields, "dateRange")
		}
	}

	return math.Min(score, 1), fields
}

// AIConfidence is the keyword similarity of the two AI descriptions, 0 when
// either is absent. Recorded on matches as an auxiliary score.
func AIConfidence(lost, found storage.Item) float64 {
	if lost.AIDescription == "" || found.AIDescription == "" {
		return 0
	}
	return Similarity(Keywords(lost.AIDescription), Keywords(found.AIDescription))
}

// ImageScore is the cosine similarity of the two image embeddings, 0 when
// either is absent. Recorded on matches as an auxiliary score.
func ImageScore(lost, found storage.Item) float64 {
	if len(lost.Embedding) == 0 || len(found.Embedding) == 0 {
		return 0
	}
	return Cosine(lost.Embedding, found.Embedding)
}
