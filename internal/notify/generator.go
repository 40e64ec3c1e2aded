package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/refind-app/refind/internal/storage"
)

// Notification types.
const (
	TypeMatchFound = "match_found"
	TypeReminder   = "reminder"
)

// Message is one outbound notification before dispatch.
type Message struct {
	To      string
	UserID  string
	MatchID string
	ItemID  string
	Type    string
	Subject string
	Body    string
}

// Generate builds the two match notifications: one for the party who lost
// the item, one for the party who found it. Each carries the match
// confidence, the counterpart item's details, the matched-criteria
// breakdown, and the counterpart's contact information.
func Generate(m storage.Match, lost, found storage.Item) []Message {
	return []Message{
		{
			To:      lost.ContactEmail,
			UserID:  lost.UserID,
			MatchID: m.ID,
			ItemID:  lost.ID,
			Type:    TypeMatchFound,
			Subject: fmt.Sprintf("Potential Match Found for Your Lost %s", lost.Category),
			Body:    lostPartyBody(m, lost, found),
		},
		{
			To:      found.ContactEmail,
			UserID:  found.UserID,
			MatchID: m.ID,
			ItemID:  found.ID,
			Type:    TypeMatchFound,
			Subject: fmt.Sprintf("Potential Owner Found for Your Found %s", found.Category),
			Body:    foundPartyBody(m, lost, found),
		},
	}
}

func lostPartyBody(m storage.Match, lost, found storage.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", lost.ContactName)
	fmt.Fprintf(&b, "Great news! We found a potential match for your lost %s.\n\n", lost.Category)
	b.WriteString("MATCH DETAILS:\n")
	fmt.Fprintf(&b, "- Match Confidence: %d%%\n", confidencePercent(m.Score))
	fmt.Fprintf(&b, "- Found Item: %s\n", found.Title)
	fmt.Fprintf(&b, "- Location Found: %s\n", found.Location)
	fmt.Fprintf(&b, "- Date Found: %s\n", found.DateOccurred.Format("January 2, 2006"))
	fmt.Fprintf(&b, "- Description: %s\n\n", found.Description)
	b.WriteString("MATCHED CRITERIA:\n")
	b.WriteString(matchedCriteria(m.MatchedFields))
	b.WriteString("\nCONTACT INFORMATION:\n")
	b.WriteString("The person who found this item can be reached at:\n")
	b.WriteString(contactBlock(found))
	b.WriteString("\nPlease contact them directly to verify if this is your item and arrange for pickup.\n")
	b.WriteString("\nBest regards,\nLost & Found System")
	return b.String()
}

func foundPartyBody(m storage.Match, lost, found storage.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", found.ContactName)
	fmt.Fprintf(&b, "We found a potential owner for the %s you reported as found.\n\n", found.Category)
	b.WriteString("MATCH DETAILS:\n")
	fmt.Fprintf(&b, "- Match Confidence: %d%%\n", confidencePercent(m.Score))
	fmt.Fprintf(&b, "- Lost Item: %s\n", lost.Title)
	fmt.Fprintf(&b, "- Location Lost: %s\n", lost.Location)
	fmt.Fprintf(&b, "- Date Lost: %s\n", lost.DateOccurred.Format("January 2, 2006"))
	fmt.Fprintf(&b, "- Description: %s\n\n", lost.Description)
	b.WriteString("MATCHED CRITERIA:\n")
	b.WriteString(matchedCriteria(m.MatchedFields))
	b.WriteString("\nCONTACT INFORMATION:\n")
	b.WriteString("The person who lost this item can be reached at:\n")
	b.WriteString(contactBlock(lost))
	b.WriteString("\nThey may contact you directly to verify ownership and arrange for pickup.\n")
	b.WriteString("\nThank you for helping reunite people with their belongings!\n")
	b.WriteString("\nBest regards,\nLost & Found System")
	return b.String()
}

// GenerateReminder builds the periodic nudge for a stale active report.
func GenerateReminder(item storage.Item, daysSinceReported int) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", item.ContactName)
	fmt.Fprintf(&b, "This is a reminder about your %s item report from %d days ago.\n\n", item.Type, daysSinceReported)
	fmt.Fprintf(&b, "Item: %s\n", item.Title)
	fmt.Fprintf(&b, "Location: %s\n", item.Location)
	fmt.Fprintf(&b, "Status: %s\n\n", item.Status)
	b.WriteString("If you have found your item or no longer need this report active, please update your listing.\n")
	b.WriteString("If you have any additional information that might help with matching, please update your description.\n")
	b.WriteString("\nBest regards,\nLost & Found System")
	return Message{
		To:      item.ContactEmail,
		UserID:  item.UserID,
		ItemID:  item.ID,
		Type:    TypeReminder,
		Subject: fmt.Sprintf("Reminder: Your %s %s report", item.Type, item.Category),
		Body:    b.String(),
	}
}

// confidencePercent renders a [0,1] score as a rounded percentage.
func confidencePercent(score float64) int {
	return int(score*100 + 0.5)
}

// matchedCriteria renders the stored matched-fields JSON as checklist lines.
func matchedCriteria(fieldsJSON string) string {
	var fields []string
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil || len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, "✓ %s\n", capitalize(f))
	}
	return b.String()
}

func contactBlock(item storage.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Name: %s\n", item.ContactName)
	fmt.Fprintf(&b, "- Email: %s\n", item.ContactEmail)
	if item.ContactPhone != "" {
		fmt.Fprintf(&b, "- Phone: %s\n", item.ContactPhone)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
