package domain

import (
	"regexp"
	"strings"
)

// Tags are the structured identifiers embedded in a payment description
// for forensic lookup, e.g. "Membership payment [invoice:in_1] [member:42]".
type Tags struct {
	InvoiceID       string
	PaymentIntentID string
	MemberUserID    string
	SubscriptionID  string
}

var tagPattern = regexp.MustCompile(`\[(invoice|pi|member|subscription):([^\]\s]+)\]`)

func BuildDescription(label string, tags Tags) string {
	parts := []string{strings.TrimSpace(label)}
	add := func(key, value string) {
		value = strings.TrimSpace(value)
		if value != "" {
			parts = append(parts, "["+key+":"+value+"]")
		}
	}
	add("invoice", tags.InvoiceID)
	add("pi", tags.PaymentIntentID)
	add("member", tags.MemberUserID)
	add("subscription", tags.SubscriptionID)
	return strings.TrimSpace(strings.Join(parts, " "))
}

func ParseDescription(description string) Tags {
	var tags Tags
	for _, match := range tagPattern.FindAllStringSubmatch(description, -1) {
		switch match[1] {
		case "invoice":
			tags.InvoiceID = match[2]
		case "pi":
			tags.PaymentIntentID = match[2]
		case "member":
			tags.MemberUserID = match[2]
		case "subscription":
			tags.SubscriptionID = match[2]
		}
	}
	return tags
}

// WithMember rewrites the member tag, keeping the rest of the description.
func WithMember(description, memberUserID string) string {
	tags := ParseDescription(description)
	label := strings.TrimSpace(tagPattern.ReplaceAllString(description, ""))
	tags.MemberUserID = memberUserID
	return BuildDescription(label, tags)
}
