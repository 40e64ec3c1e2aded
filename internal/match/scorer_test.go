package match

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/refind-app/refind/internal/storage"
)

var scoreBase = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func lostPhone() storage.Item {
	return storage.Item{
		ID:           "lost-1",
		Type:         storage.TypeLost,
		Title:        "iPhone 13",
		Description:  "Black iPhone 13 with cracked screen and blue case",
		Category:     "electronics",
		Location:     "Central Park",
		Color:        "black",
		Brand:        "Apple",
		Status:       storage.StatusActive,
		DateOccurred: scoreBase,
	}
}

func foundPhone() storage.Item {
	return storage.Item{
		ID:           "found-1",
		Type:         storage.TypeFound,
		Title:        "Found phone",
		Description:  "iPhone 13 black cracked screen found near the fountain",
		Category:     "Electronics",
		Location:     "central park",
		Color:        "Black",
		Brand:        "apple",
		Status:       storage.StatusActive,
		DateOccurred: scoreBase.Add(24 * time.Hour),
	}
}

func TestScoreStrongPair(t *testing.T) {
	score, fields := Score(lostPhone(), foundPhone(), DefaultWeights)

	if score < MinimumMatchScore {
		t.Errorf("expected a strong pair to meet the %v threshold, got %f", MinimumMatchScore, score)
	}

	// Category, location, color and brand match exactly (case-insensitive);
	// the descriptions overlap on 4 of 9 distinct keywords; one day apart
	// within the 7-day window.
	want := []string{"category", "location", "description", "color", "brand", "dateRange"}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("matched fields = %v, want %v", fields, want)
	}
}

func TestScoreWeightContributions(t *testing.T) {
	lost := lostPhone()
	found := foundPhone()
	score, _ := Score(lost, found, DefaultWeights)

	descSim := Similarity(Keywords(lost.Description), Keywords(found.Description))
	dateScore := 1 - 1.0/7.0
	expected := DefaultWeights.Category +
		DefaultWeights.Location +
		DefaultWeights.Color +
		DefaultWeights.Brand +
		DefaultWeights.Description*descSim +
		DefaultWeights.DateRange*dateScore

	if math.Abs(score-expected) > 1e-9 {
		t.Errorf("score = %f, want %f", score, expected)
	}
}

func TestScoreCategoryAloneBelowThreshold(t *testing.T) {
	lost := storage.Item{
		Type:         storage.TypeLost,
		Description:  "silver ring engraved initials",
		Category:     "jewelry",
		Location:     "Main Street",
		DateOccurred: scoreBase,
	}
	found := storage.Item{
		Type:         storage.TypeFound,
		Description:  "golden bracelet charm",
		Category:     "jewelry",
		Location:     "Harbor District",
		DateOccurred: scoreBase.Add(30 * 24 * time.Hour),
	}

	score, fields := Score(lost, found, DefaultWeights)
	if score >= MinimumMatchScore {
		t.Errorf("category alone should not meet the threshold, got %f", score)
	}
	if !reflect.DeepEqual(fields, []string{"category"}) {
		t.Errorf("matched fields = %v, want [category]", fields)
	}
}

func TestScoreLocationSubstring(t *testing.T) {
	lost := lostPhone()
	found := foundPhone()
	lost.Location = "Library"
	found.Location = "Library Building, 2nd Floor"

	_, fields := Score(lost, found, DefaultWeights)
	if !contains(fields, "location") {
		t.Errorf("expected substring location match, fields = %v", fields)
	}
}

func TestScoreImageEmbeddings(t *testing.T) {
	lost := lostPhone()
	found := foundPhone()
	lost.Embedding = []float32{1, 0, 0}
	found.Embedding = []float32{1, 0, 0}

	withImg, fields := Score(lost, found, DefaultWeights)
	withoutImg, _ := Score(lostPhone(), foundPhone(), DefaultWeights)

	if math.Abs(withImg-withoutImg-DefaultWeights.ImageMatch) > 1e-9 {
		t.Errorf("identical embeddings should add the full image weight: %f vs %f", withImg, withoutImg)
	}
	if !contains(fields, "imageMatch") {
		t.Errorf("expected imageMatch recorded, fields = %v", fields)
	}
}

func TestScoreAIDescriptionRequiresBothSides(t *testing.T) {
	lost := lostPhone()
	found := foundPhone()
	lost.AIDescription = "black smartphone cracked display protective case"

	oneSided, _ := Score(lost, found, DefaultWeights)
	neither, _ := Score(lostPhone(), foundPhone(), DefaultWeights)
	if oneSided != neither {
		t.Errorf("one-sided AI description must not affect the score: %f vs %f", oneSided, neither)
	}
}

func TestScoreOutsideDateWindow(t *testing.T) {
	lost := lostPhone()
	found := foundPhone()
	found.DateOccurred = scoreBase.Add(10 * 24 * time.Hour)

	_, fields := Score(lost, found, DefaultWeights)
	if contains(fields, "dateRange") {
		t.Errorf("dates 10 days apart must not record dateRange, fields = %v", fields)
	}
}

func TestScoreCappedAtOne(t *testing.T) {
	lost := lostPhone()
	found := foundPhone()
	lost.Size = "medium"
	found.Size = "medium"
	lost.Embedding = []float32{1, 2, 3}
	found.Embedding = []float32{1, 2, 3}
	lost.AIDescription = "black smartphone cracked display"
	found.AIDescription = "black smartphone cracked display"
	found.Description = lost.Description
	found.DateOccurred = lost.DateOccurred

	score, _ := Score(lost, found, DefaultWeights)
	if score > 1 {
		t.Errorf("score must be capped at 1, got %f", score)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("a fully matching pair should score 1, got %f", score)
	}
}

func TestEligible(t *testing.T) {
	item := lostPhone()
	if !Eligible(item) {
		t.Errorf("complete item should be eligible")
	}

	for _, clear := range []func(*storage.Item){
		func(i *storage.Item) { i.Category = "" },
		func(i *storage.Item) { i.Location = "" },
		func(i *storage.Item) { i.Description = "" },
	} {
		it := lostPhone()
		clear(&it)
		if Eligible(it) {
			t.Errorf("item missing a required field should be ineligible: %+v", it)
		}
	}
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
