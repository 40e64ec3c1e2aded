package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/refind-app/refind/internal/storage"
)

func sampleMatch() (storage.Match, storage.Item, storage.Item) {
	m := storage.Match{
		ID:            "lost-1:found-1",
		LostItemID:    "lost-1",
		FoundItemID:   "found-1",
		Score:         0.72,
		MatchedFields: `["category","location","color"]`,
		Status:        storage.MatchPending,
	}
	lost := storage.Item{
		ID:           "lost-1",
		Type:         storage.TypeLost,
		Title:        "iPhone 13",
		Description:  "Black iPhone 13 with cracked screen",
		Category:     "electronics",
		Location:     "Central Park",
		ContactName:  "Alex",
		ContactEmail: "alex@example.com",
		ContactPhone: "555-0101",
		DateOccurred: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	found := storage.Item{
		ID:           "found-1",
		Type:         storage.TypeFound,
		Title:        "Found phone",
		Description:  "iPhone found near the fountain",
		Category:     "electronics",
		Location:     "Central Park",
		ContactName:  "Robin",
		ContactEmail: "robin@example.com",
		DateOccurred: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
	}
	return m, lost, found
}

func TestGenerateProducesBothPartyMessages(t *testing.T) {
	m, lost, found := sampleMatch()

	msgs := Generate(m, lost, found)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	toLost, toFound := msgs[0], msgs[1]
	if toLost.To != "alex@example.com" || toFound.To != "robin@example.com" {
		t.Errorf("recipients = %q, %q", toLost.To, toFound.To)
	}
	if toLost.Subject != "Potential Match Found for Your Lost electronics" {
		t.Errorf("lost-party subject = %q", toLost.Subject)
	}
	if toFound.Subject != "Potential Owner Found for Your Found electronics" {
		t.Errorf("found-party subject = %q", toFound.Subject)
	}
	for _, msg := range msgs {
		if msg.Type != TypeMatchFound {
			t.Errorf("type = %q, want match_found", msg.Type)
		}
		if msg.MatchID != m.ID {
			t.Errorf("match id = %q, want %q", msg.MatchID, m.ID)
		}
	}
}

func TestGenerateBodyContents(t *testing.T) {
	m, lost, found := sampleMatch()

	msgs := Generate(m, lost, found)
	lostBody, foundBody := msgs[0].Body, msgs[1].Body

	// 0.72 rounds to 72%.
	if !strings.Contains(lostBody, "Match Confidence: 72%") {
		t.Errorf("lost body missing confidence:\n%s", lostBody)
	}

	// Each party sees the counterpart item and its contact details.
	for _, want := range []string{"Found Item: Found phone", "Name: Robin", "Email: robin@example.com"} {
		if !strings.Contains(lostBody, want) {
			t.Errorf("lost body missing %q", want)
		}
	}
	for _, want := range []string{"Lost Item: iPhone 13", "Name: Alex", "Email: alex@example.com", "Phone: 555-0101"} {
		if !strings.Contains(foundBody, want) {
			t.Errorf("found body missing %q", want)
		}
	}

	// The found party has no phone on record, so the lost body has no
	// phone line.
	if strings.Contains(lostBody, "Phone:") {
		t.Errorf("lost body should not contain a phone line:\n%s", lostBody)
	}

	// Matched criteria render as a capitalized checklist.
	for _, want := range []string{"✓ Category", "✓ Location", "✓ Color"} {
		if !strings.Contains(lostBody, want) {
			t.Errorf("lost body missing criterion %q", want)
		}
	}
}

func TestGenerateEmptyMatchedFields(t *testing.T) {
	m, lost, found := sampleMatch()
	m.MatchedFields = "[]"

	msgs := Generate(m, lost, found)
	if strings.Contains(msgs[0].Body, "✓") {
		t.Errorf("no criteria should render for an empty field list:\n%s", msgs[0].Body)
	}
}

func TestGenerateReminder(t *testing.T) {
	_, lost, _ := sampleMatch()
	lost.Status = storage.StatusActive

	msg := GenerateReminder(lost, 9)
	if msg.To != "alex@example.com" {
		t.Errorf("recipient = %q", msg.To)
	}
	if msg.Type != TypeReminder {
		t.Errorf("type = %q, want reminder", msg.Type)
	}
	if msg.Subject != "Reminder: Your lost electronics report" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "9 days ago") {
		t.Errorf("body missing item age:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "iPhone 13") {
		t.Errorf("body missing item title:\n%s", msg.Body)
	}
}
