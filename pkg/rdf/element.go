package rdf

import (
	"sync"
	"time"
)

// Triple is a single (subject, predicate, object) statement. Subject is
// implicit for triples held inside an Element (it is always that element's
// URI); Triple carries it explicitly so it can be exported into a dataset.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
	// Graph optionally names the graph this triple belongs to. Empty means
	// the default graph.
	Graph string
}

// ElementType is the base RDF type shared by every node kind, in addition to
// each node's own specialised type (e.g. "Unit", "Entity").
const ElementType = "Element"

// Ref is anything that can be normalised into a URI: a plain string, a type
// exposing URIOf() string, or a NamedNode-shaped value. See normaliseRef.
type Ref interface{}

// namedNode is the capability interface checked by normaliseRef for values
// that expose their own URI without being plain strings.
type namedNode interface {
	URIOf() string
}

// normaliseRef dispatches a mixed object-or-capability entity reference into
// a plain URI string. It prefers, in order: a value already implementing
// namedNode, a plain string, then gives up. Implementers reaching for
// duck-typing here should instead extend the namedNode capability set.
func normaliseRef(x Ref) (string, bool) {
	switch v := x.(type) {
	case string:
		return v, true
	case namedNode:
		return v.URIOf(), true
	default:
		return "", false
	}
}

// Element is the base behaviour embedded by every typed node (Unit, Entity,
// Relationship, Attribute, CommunityElement). All mutating methods refresh
// Modified exactly once per call via touch(), never recursively.
type Element struct {
	mu sync.Mutex

	uri     string
	types   []string // always contains ElementType plus specialisations
	triples []Triple

	preferredLabels map[string]string // language tag -> label
	altLabels       []string

	content     string
	subType     string
	entryPoint  bool
	pageRank    float64
	similarity  float64

	provenance []string // source URIs this node derives from

	created  time.Time
	modified time.Time
}

// NewElement constructs a base Element with the given URI and specialised
// type (e.g. "Entity"). The base "Element" type is always included.
func NewElement(uri, specialisedType string, now time.Time) Element {
	return Element{
		uri:             uri,
		types:           []string{ElementType, specialisedType},
		preferredLabels: make(map[string]string),
		created:         now,
		modified:        now,
	}
}

func (e *Element) touch(now time.Time) {
	e.modified = now
}

// URIOf implements the namedNode capability so Elements can be passed
// directly as a Ref without manual string extraction.
func (e *Element) URIOf() string { return e.uri }

// URI returns this node's stable identifier.
func (e *Element) URI() string { return e.uri }

// Types returns the RDF types this node carries (base + specialisations).
func (e *Element) Types() []string {
	out := make([]string, len(e.types))
	copy(out, e.types)
	return out
}

// Created returns the node's creation timestamp.
func (e *Element) Created() time.Time { return e.created }

// Modified returns the node's last-modified timestamp.
func (e *Element) Modified() time.Time { return e.modified }

// AddTriple appends a (this.URI, predicate, object) triple, refreshing
// Modified.
func (e *Element) AddTriple(now time.Time, predicate, object string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addTripleLocked(now, predicate, object)
}

// addTripleLocked is AddTriple's critical section, callable from other
// methods that already hold e.mu — e.mu is a plain sync.Mutex and is not
// reentrant, so callers must never go through AddTriple itself while
// holding the lock.
func (e *Element) addTripleLocked(now time.Time, predicate, object string) {
	e.triples = append(e.triples, Triple{Subject: e.uri, Predicate: predicate, Object: object})
	e.touch(now)
}

// RemoveTriple removes the first matching (predicate, object) triple, if
// present, refreshing Modified regardless (matching the donor's
// refresh-on-attempted-mutation idiom).
func (e *Element) RemoveTriple(now time.Time, predicate, object string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, t := range e.triples {
		if t.Predicate == predicate && t.Object == object {
			e.triples = append(e.triples[:i], e.triples[i+1:]...)
			e.touch(now)
			return true
		}
	}
	e.touch(now)
	return false
}

// Triples returns a copy of this node's accumulated triples.
func (e *Element) Triples() []Triple {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Triple, len(e.triples))
	copy(out, e.triples)
	return out
}

// Content returns the node's free-text content, if any.
func (e *Element) Content() string { return e.content }

// SetContent sets the node's free-text content.
func (e *Element) SetContent(now time.Time, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.content = content
	e.touch(now)
}

// PreferredLabel returns the label for lang, and whether one is set.
func (e *Element) PreferredLabel(lang string) (string, bool) {
	l, ok := e.preferredLabels[lang]
	return l, ok
}

// SetPreferredLabel sets the one preferred label for the given language tag.
func (e *Element) SetPreferredLabel(now time.Time, lang, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preferredLabels == nil {
		e.preferredLabels = make(map[string]string)
	}
	e.preferredLabels[lang] = label
	e.touch(now)
}

// AddAltLabel appends an alternative label; many are allowed.
func (e *Element) AddAltLabel(now time.Time, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.altLabels = append(e.altLabels, label)
	e.touch(now)
}

// AltLabels returns a copy of the accumulated alternative labels.
func (e *Element) AltLabels() []string {
	out := make([]string, len(e.altLabels))
	copy(out, e.altLabels)
	return out
}

// EntryPoint reports whether symbolic search may originate traversals here.
func (e *Element) EntryPoint() bool { return e.entryPoint }

// SetEntryPoint sets the entry-point flag.
func (e *Element) SetEntryPoint(now time.Time, v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entryPoint = v
	e.touch(now)
}

// SubType returns the node's ontology sub-type, if any.
func (e *Element) SubType() string { return e.subType }

// SetSubType sets the node's ontology sub-type.
func (e *Element) SetSubType(now time.Time, subType string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subType = subType
	e.touch(now)
}

// PageRank returns the node's personalised-page-rank score.
func (e *Element) PageRank() float64 { return e.pageRank }

// SetPageRank sets the node's personalised-page-rank score.
func (e *Element) SetPageRank(now time.Time, score float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pageRank = score
	e.touch(now)
}

// Similarity returns the node's most recently recorded similarity score.
func (e *Element) Similarity() float64 { return e.similarity }

// SetSimilarity sets the node's similarity score.
func (e *Element) SetSimilarity(now time.Time, score float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.similarity = score
	e.touch(now)
}

// DerivedFrom records a provenance link to a source URI (or Ref).
func (e *Element) DerivedFrom(now time.Time, source Ref) bool {
	uri, ok := normaliseRef(source)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.provenance = append(e.provenance, uri)
	e.addTripleLocked(now, "prov:wasDerivedFrom", uri)
	return true
}

// Provenance returns the accumulated derivation sources.
func (e *Element) Provenance() []string {
	out := make([]string, len(e.provenance))
	copy(out, e.provenance)
	return out
}

// ConnectTo appends a connectsTo triple to other. When weight is non-nil, a
// connection URI is also minted, linked from this element via
// kg:hasWeightedConnection and returned; the weight value itself is not
// written to any triple, and the connection node carries no triples of its
// own.
func (e *Element) ConnectTo(now time.Time, reg *Registry, other Ref, weight *float64) (string, bool) {
	uri, ok := normaliseRef(other)
	if !ok {
		return "", false
	}
	e.AddTriple(now, "kg:connectsTo", uri)
	if weight == nil {
		return "", true
	}
	connURI := reg.Mint("Connection")
	e.AddTriple(now, "kg:hasWeightedConnection", connURI)
	return connURI, true
}

// Export appends every triple of this node (including the base type
// triples) into the caller-supplied consumer function, which is typically
// graph.Dataset.AddQuad. Content, when set, is exported as kg:content so
// downstream consumers (e.g. pkg/enrich's candidate selection) can recover
// embeddable text by walking the dataset alone, without holding a live
// reference to this Element.
func (e *Element) Export(add func(subject, predicate, object, graph string)) {
	for _, t := range e.types {
		add(e.uri, "rdf:type", "kg:"+t, "")
	}
	for _, t := range e.Triples() {
		add(t.Subject, t.Predicate, t.Object, t.Graph)
	}
	for lang, label := range e.preferredLabels {
		add(e.uri, "skos:prefLabel@"+lang, label, "")
	}
	for _, label := range e.altLabels {
		add(e.uri, "skos:altLabel", label, "")
	}
	if e.content != "" {
		add(e.uri, "kg:content", e.content, "")
	}
	if e.subType != "" {
		add(e.uri, "kg:subType", e.subType, "")
	}
	add(e.uri, "dc:created", e.created.Format(time.RFC3339Nano), "")
}

// Clone copies all triples, labels, content and flags onto a fresh Element
// with a new URI, except the creation timestamp (Clone sets both Created
// and Modified to now, since the clone is itself a new artifact).
func (e *Element) Clone(newURI string, now time.Time) Element {
	e.mu.Lock()
	defer e.mu.Unlock()

	clone := Element{
		uri:             newURI,
		types:           append([]string(nil), e.types...),
		triples:         append([]Triple(nil), e.triples...),
		preferredLabels: make(map[string]string, len(e.preferredLabels)),
		altLabels:       append([]string(nil), e.altLabels...),
		content:         e.content,
		subType:         e.subType,
		entryPoint:      e.entryPoint,
		pageRank:        e.pageRank,
		similarity:      e.similarity,
		provenance:      append([]string(nil), e.provenance...),
		created:         now,
		modified:        now,
	}
	for k, v := range e.preferredLabels {
		clone.preferredLabels[k] = v
	}
	for i := range clone.triples {
		clone.triples[i].Subject = newURI
	}
	return clone
}
