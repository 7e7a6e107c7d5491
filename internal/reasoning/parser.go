package reasoning

import (
	"encoding/json"
	"strings"

	"github.com/moolen/vigil/internal/risk"
)

// ParseStatus classifies how a model reply was recovered.
type ParseStatus string

const (
	// StatusParsed - the reply was valid JSON matching the schema
	StatusParsed ParseStatus = "parsed"
	// StatusDegraded - the reply was recovered by keyword extraction
	StatusDegraded ParseStatus = "degraded"
	// StatusFailed - nothing usable could be recovered
	StatusFailed ParseStatus = "failed"
)

// degradedConfidence is assigned to results recovered by keyword extraction.
const degradedConfidence = 0.5

// extractJSON returns the first balanced JSON object in a model reply,
// tolerating markdown code fences and surrounding prose.
func extractJSON(raw string) (string, bool) {
	s := raw
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseRootCause recovers a root-cause analysis from a raw model reply.
// Strict JSON parsing is attempted first; on failure a keyword scan of the
// reply produces a degraded result with fixed confidence.
func ParseRootCause(raw string) (risk.RootCauseAnalysis, ParseStatus) {
	if doc, ok := extractJSON(raw); ok {
		var rca risk.RootCauseAnalysis
		if err := json.Unmarshal([]byte(doc), &rca); err == nil &&
			rca.PrimaryCause != "" && rca.Confidence >= 0 && rca.Confidence <= 1 {
			return rca, StatusParsed
		}
	}

	if cause, ok := causeFromKeywords(raw); ok {
		return risk.RootCauseAnalysis{
			PrimaryCause: cause,
			Confidence:   degradedConfidence,
			Summary:      strings.TrimSpace(firstLine(raw)),
			Degraded:     true,
		}, StatusDegraded
	}

	return risk.RootCauseAnalysis{
		PrimaryCause: risk.CauseUnknown,
		Confidence:   0,
		Degraded:     true,
	}, StatusFailed
}

// ParseAction recovers an action decision from a raw model reply.
// Enum fields are validated strictly; unvalidatable replies fall back to a
// keyword scan, and the caller handles total failure.
func ParseAction(raw string) (risk.ActionDecision, ParseStatus) {
	if doc, ok := extractJSON(raw); ok {
		var loose struct {
			ActionType string  `json:"action_type"`
			Urgency    string  `json:"urgency"`
			Rationale  string  `json:"rationale"`
			Confidence float64 `json:"confidence"`
		}
		if err := json.Unmarshal([]byte(doc), &loose); err == nil {
			actionType, typeOK := risk.ParseActionType(loose.ActionType)
			urgency, urgencyOK := risk.ParseUrgency(loose.Urgency)
			if typeOK && urgencyOK && loose.Confidence >= 0 && loose.Confidence <= 1 {
				return risk.ActionDecision{
					Type:       actionType,
					Urgency:    urgency,
					Rationale:  loose.Rationale,
					Confidence: loose.Confidence,
				}, StatusParsed
			}
		}
	}

	if actionType, ok := actionFromKeywords(raw); ok {
		return risk.ActionDecision{
			Type:       actionType,
			Urgency:    urgencyFromKeywords(raw),
			Rationale:  strings.TrimSpace(firstLine(raw)),
			Confidence: degradedConfidence,
			Degraded:   true,
		}, StatusDegraded
	}

	return risk.ActionDecision{}, StatusFailed
}

func causeFromKeywords(raw string) (string, bool) {
	text := strings.ToLower(raw)
	switch {
	case strings.Contains(text, "login") || strings.Contains(text, "engagement") || strings.Contains(text, "inactiv"):
		return "declining_engagement", true
	case strings.Contains(text, "support") || strings.Contains(text, "complaint"):
		return "support_friction", true
	case strings.Contains(text, "price") || strings.Contains(text, "cost") || strings.Contains(text, "revenue"):
		return "price_sensitivity", true
	case strings.Contains(text, "feature") || strings.Contains(text, "usage") || strings.Contains(text, "adoption"):
		return "low_feature_adoption", true
	}
	return "", false
}

func actionFromKeywords(raw string) (risk.ActionType, bool) {
	text := strings.ToLower(raw)
	switch {
	case strings.Contains(text, "no action") || strings.Contains(text, "no intervention"):
		return risk.ActionNone, true
	case strings.Contains(text, "outreach") || strings.Contains(text, "reach out") || strings.Contains(text, "contact the customer"):
		return risk.ActionOutreach, true
	case strings.Contains(text, "ticket") || strings.Contains(text, "open a case"):
		return risk.ActionTicket, true
	case strings.Contains(text, "alert") || strings.Contains(text, "notify"):
		return risk.ActionAlert, true
	}
	return "", false
}

func urgencyFromKeywords(raw string) risk.Urgency {
	text := strings.ToLower(raw)
	switch {
	case strings.Contains(text, "critical") || strings.Contains(text, "immediate"):
		return risk.UrgencyCritical
	case strings.Contains(text, "urgent") || strings.Contains(text, "high"):
		return risk.UrgencyHigh
	case strings.Contains(text, "medium") || strings.Contains(text, "moderate"):
		return risk.UrgencyMedium
	}
	return risk.UrgencyLow
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
