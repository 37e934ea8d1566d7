// Package classifier produces a category, explanation and confidence for a
// ticket. The OpenAI-backed implementation degrades to a local fallback on
// any failure, so Classify never errors out to the caller.
package classifier

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/helpdesk-micro/tracker-service/internal/model"
)

type Result struct {
	Category    string  `json:"category"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

type Classifier interface {
	Classify(ctx context.Context, subject, body string) Result
}

// sanitize normalizes a raw classification so the rest of the system only
// ever sees a valid triple: a known category, a non-empty explanation, and a
// confidence in [0.00, 1.00] with two decimals.
func sanitize(r Result) Result {
	if r.Category == "" || !model.ValidCategory(r.Category) {
		r.Category = model.CategoryOther
	}
	if r.Explanation == "" {
		r.Explanation = "N/A"
	}
	r.Confidence = clamp2(r.Confidence)
	return r
}

func clamp2(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return math.Round(v*100) / 100
}

// firstJSONObject extracts the first brace-delimited JSON value from raw
// model output, tolerating code fences and surrounding prose.
func firstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	dec := json.NewDecoder(strings.NewReader(s[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return "", false
	}
	return string(raw), true
}
