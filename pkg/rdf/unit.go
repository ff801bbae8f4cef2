package rdf

import (
	"fmt"
	"time"
)

// MinUnitContentLength is the minimum character length for a Unit to be
// considered valid.
const MinUnitContentLength = 10

// EntityMention records that a Unit mentions an Entity with a given
// relevance in [0,1].
type EntityMention struct {
	EntityURI string
	Relevance float64
}

// Unit represents a coherent sentence-to-paragraph-sized statement
// extracted from a source document. A Unit is created once per
// decomposition and is thereafter immutable except for added entity
// mentions and its embedding.
type Unit struct {
	Element

	SourceDoc string
	Position  int
	Length    int
	Language  string

	Summary  string // stored as a SKOS-style definition, see Unit.Export
	Mentions []EntityMention

	Embedding []float32

	// Maybe/Confidence implement the Hypothetical-node overlay: any unit may
	// carry maybe=true with a confidence in [0.1,0.95] (see pkg/hyde).
	Maybe      bool
	Confidence float64
}

// NewUnit validates content and constructs a Unit. isEntryPoint defaults to
// false per the data model.
func NewUnit(reg *Registry, now time.Time, content, sourceDoc string, position int) (*Unit, error) {
	if len(content) < MinUnitContentLength {
		return nil, fmt.Errorf("rdf: new unit: content length %d below minimum %d", len(content), MinUnitContentLength)
	}
	u := &Unit{
		Element:   NewElement(reg.Mint("Unit"), "Unit", now),
		SourceDoc: sourceDoc,
		Position:  position,
		Length:    len(content),
	}
	u.SetContent(now, content)
	u.SetEntryPoint(now, false)
	return u, nil
}

// AddMention records that this unit mentions the given entity with the
// given relevance, clamped to [0,1].
func (u *Unit) AddMention(now time.Time, entityURI string, relevance float64) {
	if relevance < 0 {
		relevance = 0
	}
	if relevance > 1 {
		relevance = 1
	}
	u.Mentions = append(u.Mentions, EntityMention{EntityURI: entityURI, Relevance: relevance})
	u.AddTriple(now, "kg:mentions", entityURI)
}

// SetEmbedding attaches a dense vector to the unit.
func (u *Unit) SetEmbedding(now time.Time, vec []float32) {
	u.Embedding = vec
	u.AddTriple(now, "kg:hasEmbedding", "true")
}

// SetHypothetical marks the unit as maybe=true with the given confidence,
// clamped into [0.1,0.95]. Marking is monotone: once set, SetHypothetical
// never unsets maybe — callers must use Promote for that.
func (u *Unit) SetHypothetical(now time.Time, confidence float64) {
	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	u.Maybe = true
	u.Confidence = confidence
	u.AddTriple(now, "kg:maybe", "true")
	u.AddTriple(now, "kg:confidence", fmt.Sprintf("%.4f", confidence))
}

// Export appends the embedded Element's triples plus a skos:definition
// triple for Summary, when set, so enrichment can recover "prefer summary,
// fall back to content" text by walking the dataset alone.
func (u *Unit) Export(add func(subject, predicate, object, graph string)) {
	u.Element.Export(add)
	if u.Summary != "" {
		add(u.URI(), "skos:definition", u.Summary, "")
	}
}

// Promote explicitly unmarks maybe=true, the only sanctioned way to clear
// the hypothetical flag (never by reindexing).
func (u *Unit) Promote(now time.Time) {
	u.Maybe = false
	u.RemoveTriple(now, "kg:maybe", "true")
}
