package rdf

import (
	"fmt"
	"time"
)

// Entity represents a named real-world referent (person, place, concept)
// extracted from one or more units. isEntryPoint defaults to true.
type Entity struct {
	Element

	PreferredLabel string // required, language-tagged via Element.preferredLabels
	SubTypeLabel   string
	Confidence     float64 // [0,1]
	Frequency      int     // >=1
	Sources        map[string]struct{}

	Maybe      bool
	MaybeScore float64
}

// NewEntity constructs a fresh Entity with frequency 1 and isEntryPoint=true.
func NewEntity(reg *Registry, now time.Time, lang, preferredLabel string, confidence float64) *Entity {
	e := &Entity{
		Element:        NewElement(reg.Mint("Entity"), "Entity", now),
		PreferredLabel: preferredLabel,
		Confidence:     clamp01(confidence),
		Frequency:      1,
		Sources:        make(map[string]struct{}),
	}
	e.SetPreferredLabel(now, lang, preferredLabel)
	e.SetEntryPoint(now, true)
	return e
}

// RecordMention increments the frequency counter and unions source into the
// entity's source set, as happens on every subsequent mention of an
// already-known entity.
func (e *Entity) RecordMention(now time.Time, source string) {
	e.Frequency++
	if e.Sources == nil {
		e.Sources = make(map[string]struct{})
	}
	if _, exists := e.Sources[source]; !exists {
		e.Sources[source] = struct{}{}
		e.AddTriple(now, "kg:hasSource", source)
	}
}

// SetHypothetical marks this entity maybe=true with the given confidence,
// matching Unit's and Relationship's monotone-marking contract.
func (e *Entity) SetHypothetical(now time.Time, confidence float64) {
	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	e.Maybe = true
	e.MaybeScore = confidence
	e.AddTriple(now, "kg:maybe", "true")
	e.AddTriple(now, "kg:confidence", fmt.Sprintf("%.4f", confidence))
}

// Export appends the embedded Element's triples plus kg:confidence and
// kg:frequency, so symbolic search (pkg/search) can rank entities by stored
// confidence by walking the dataset alone, without a live *Entity reference.
func (e *Entity) Export(add func(subject, predicate, object, graph string)) {
	e.Element.Export(add)
	add(e.URI(), "kg:confidence", fmt.Sprintf("%.4f", e.Confidence), "")
	add(e.URI(), "kg:frequency", fmt.Sprintf("%d", e.Frequency), "")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
