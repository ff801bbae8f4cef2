package rdf

import (
	"fmt"
	"time"
)

// Relationship is a first-class node connecting two entity URIs; it is
// never represented as a bare graph edge so that it can itself carry
// evidence, weight, and provenance.
type Relationship struct {
	Element

	Source      string
	Target      string
	RelType     string
	Description string
	Weight      float64 // [0,1]
	Evidence    map[string]struct{}
	Bidirectional bool

	Maybe bool
}

// NewRelationship constructs a Relationship. It returns an error if
// source == target, per the invariant in spec §3.
func NewRelationship(reg *Registry, now time.Time, source, target, relType string, weight float64) (*Relationship, error) {
	if source == target {
		return nil, fmt.Errorf("rdf: new relationship: source and target must differ, got %q", source)
	}
	r := &Relationship{
		Element:  NewElement(reg.Mint("Relationship"), "Relationship", now),
		Source:   source,
		Target:   target,
		RelType:  relType,
		Weight:   clamp01(weight),
		Evidence: make(map[string]struct{}),
	}
	r.AddTriple(now, "kg:source", source)
	r.AddTriple(now, "kg:target", target)
	r.AddTriple(now, "kg:relType", relType)
	return r, nil
}

// Export appends the embedded Element's triples plus kg:weight and
// kg:bidirectional, so downstream consumers (pkg/enrich's idempotence check,
// pkg/search, the stats/communities operation handlers) can recover a
// relationship's weight by walking the dataset alone.
func (r *Relationship) Export(add func(subject, predicate, object, graph string)) {
	r.Element.Export(add)
	add(r.URI(), "kg:weight", fmt.Sprintf("%.4f", r.Weight), "")
	if r.Bidirectional {
		add(r.URI(), "kg:bidirectional", "true", "")
	}
}

// AddEvidence records a supporting unit URI.
func (r *Relationship) AddEvidence(now time.Time, unitURI string) {
	if r.Evidence == nil {
		r.Evidence = make(map[string]struct{})
	}
	if _, ok := r.Evidence[unitURI]; ok {
		return
	}
	r.Evidence[unitURI] = struct{}{}
	r.AddTriple(now, "kg:evidence", unitURI)
}

// SetHypothetical marks this relationship maybe=true, matching Unit's
// monotone-marking contract.
func (r *Relationship) SetHypothetical(now time.Time, confidence float64) {
	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	r.Maybe = true
	r.AddTriple(now, "kg:maybe", "true")
	r.AddTriple(now, "kg:confidence", fmt.Sprintf("%.4f", confidence))
}
