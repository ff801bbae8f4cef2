// Package rdf provides the namespace registry and the base element type
// shared by every node kind in the knowledge graph (units, entities,
// relationships, attributes, community elements).
package rdf

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Standard prefixes seeded into every new Registry.
const (
	PrefixRDF  = "rdf"
	PrefixRDFS = "rdfs"
	PrefixSKOS = "skos"
	PrefixPROV = "prov"
	PrefixDC   = "dc"
	PrefixKG   = "kg"
	PrefixInst = "inst"
)

var standardNamespaces = map[string]string{
	PrefixRDF:  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	PrefixRDFS: "http://www.w3.org/2000/01/rdf-schema#",
	PrefixSKOS: "http://www.w3.org/2004/02/skos/core#",
	PrefixPROV: "http://www.w3.org/ns/prov#",
	PrefixDC:   "http://purl.org/dc/terms/",
	PrefixKG:   "https://kgweave.dev/ontology#",
}

// ErrUnknownPrefix is returned by Resolve when the prefix has not been
// registered.
var ErrUnknownPrefix = fmt.Errorf("unknown prefix")

// URIKind classifies a URI by the lexical convention of its local name.
type URIKind int

const (
	// KindIndividual is the default: neither class-like nor property-like.
	KindIndividual URIKind = iota
	// KindClass marks a URI whose local name starts with an uppercase letter.
	KindClass
	// KindProperty marks a URI whose local name starts with a lowercase letter.
	KindProperty
)

// Registry holds a bidirectional prefix↔namespace mapping plus the engine's
// URI minting counters. A Registry is scoped to one engine instance — it is
// never a package-level singleton, so constructing a fresh Registry gives a
// test a clean minting counter.
type Registry struct {
	instanceBase string

	mu       sync.RWMutex
	prefixes map[string]string // prefix -> base URI
	reverse  map[string]string // base URI -> prefix, longest-base-first lookup handled in Compress

	counters sync.Map // kind string -> *atomic.Uint64
}

// NewRegistry constructs a Registry seeded with the standard vocabularies
// plus a local instance base used for minted URIs (e.g.
// "https://kg.example.org/instance").
func NewRegistry(instanceBase string) *Registry {
	instanceBase = strings.TrimRight(instanceBase, "/")
	r := &Registry{
		instanceBase: instanceBase,
		prefixes:     make(map[string]string, len(standardNamespaces)+1),
		reverse:      make(map[string]string, len(standardNamespaces)+1),
	}
	for p, ns := range standardNamespaces {
		r.prefixes[p] = ns
		r.reverse[ns] = p
	}
	r.prefixes[PrefixInst] = instanceBase + "/"
	r.reverse[instanceBase+"/"] = PrefixInst
	return r
}

// Register adds or overwrites a prefix mapping.
func (r *Registry) Register(prefix, baseURI string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = baseURI
	r.reverse[baseURI] = prefix
}

// Resolve expands a "prefix:local" string into a full URI. It returns
// ErrUnknownPrefix, wrapped with the offending prefix, when the prefix was
// never registered. Strings without a colon, or whose prefix looks like a
// scheme (http, https), are returned unchanged.
func (r *Registry) Resolve(prefixed string) (string, error) {
	idx := strings.IndexByte(prefixed, ':')
	if idx < 0 {
		return prefixed, nil
	}
	prefix, local := prefixed[:idx], prefixed[idx+1:]
	if prefix == "http" || prefix == "https" {
		return prefixed, nil
	}
	r.mu.RLock()
	base, ok := r.prefixes[prefix]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("namespace: resolve %q: %w: %s", prefixed, ErrUnknownPrefix, prefix)
	}
	return base + local, nil
}

// Compress returns the prefixed form of uri if a registered namespace is a
// prefix of it, otherwise it returns uri unchanged. When multiple namespaces
// match, the longest base URI wins.
func (r *Registry) Compress(uri string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bestPrefix, bestBase := "", ""
	for base, prefix := range r.reverse {
		if strings.HasPrefix(uri, base) && len(base) > len(bestBase) {
			bestBase, bestPrefix = base, prefix
		}
	}
	if bestBase == "" {
		return uri
	}
	return bestPrefix + ":" + uri[len(bestBase):]
}

// Mint returns a fresh, globally-unique URI of the form
// "<instanceBase>/<kind>/<monotonic>-<random>". The monotonic component is a
// per-kind counter held on this Registry instance; the random suffix (a
// UUID) guarantees uniqueness across Registry instances without requiring a
// shared process-wide counter.
func (r *Registry) Mint(kind string) string {
	v, _ := r.counters.LoadOrStore(kind, new(atomic.Uint64))
	counter := v.(*atomic.Uint64)
	seq := counter.Add(1)
	return fmt.Sprintf("%s/%s/%d-%s", r.instanceBase, kind, seq, uuid.NewString())
}

// ClassifyURI distinguishes class-like, property-like, and individual URIs
// by the case of the first rune of the local name (the text following the
// final '/' or '#').
func ClassifyURI(uri string) URIKind {
	local := localName(uri)
	if local == "" {
		return KindIndividual
	}
	r := local[0]
	switch {
	case r >= 'A' && r <= 'Z':
		return KindClass
	case r >= 'a' && r <= 'z':
		return KindProperty
	default:
		return KindIndividual
	}
}

func localName(uri string) string {
	if idx := strings.LastIndexByte(uri, '#'); idx >= 0 {
		return uri[idx+1:]
	}
	if idx := strings.LastIndexByte(uri, '/'); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}
