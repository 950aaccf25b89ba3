package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultSummaryLength = 160
	defaultMaxItems      = 100
)

// Tuning is the per-source behaviour override stored as JSON on the source.
type Tuning struct {
	MaxPerHour    int                 `json:"max_per_hour,omitempty" yaml:"max_per_hour"`
	KeywordHints  map[string][]string `json:"keyword_hints,omitempty" yaml:"keyword_hints"`
	SummaryLength int                 `json:"summary_length,omitempty" yaml:"summary_length"`
	MaxItems      int                 `json:"max_items,omitempty" yaml:"max_items"`
	AllowHTTP     bool                `json:"allow_http,omitempty" yaml:"allow_http"`
}

// ParseTuning decodes raw tuning JSON. Empty input yields defaults.
// On malformed input the defaults are returned together with the error so
// callers can log it and keep going.
func ParseTuning(raw []byte) (Tuning, error) {
	var t Tuning
	if len(raw) == 0 || string(raw) == "null" {
		return t.WithDefaults(), nil
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return Tuning{}.WithDefaults(), fmt.Errorf("tuning: decode: %w", err)
	}
	return t.WithDefaults(), nil
}

// WithDefaults fills unset or invalid fields.
func (t Tuning) WithDefaults() Tuning {
	if t.SummaryLength <= 0 {
		t.SummaryLength = defaultSummaryLength
	}
	if t.MaxItems <= 0 {
		t.MaxItems = defaultMaxItems
	}
	if t.MaxPerHour < 0 {
		t.MaxPerHour = 0
	}
	return t
}

// EmitSpacing is the minimum gap between two promotions from the source.
// Zero means unlimited.
func (t Tuning) EmitSpacing() time.Duration {
	if t.MaxPerHour <= 0 {
		return 0
	}
	return time.Hour / time.Duration(t.MaxPerHour)
}

// Marshal encodes the tuning for storage.
func (t Tuning) Marshal() []byte {
	b, err := json.Marshal(t)
	if err != nil {
		return []byte("{}")
	}
	return b
}
