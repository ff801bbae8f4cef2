package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kgweave/kgweave/pkg/rdf"
)

// Format names a supported export serialisation.
type Format string

const (
	FormatTurtle   Format = "turtle"
	FormatNTriples Format = "ntriples"
	FormatJSONLD   Format = "jsonld"
	FormatJSON     Format = "json"
)

// Filter narrows which quads Export serialises; an empty Filter exports
// everything. Limit of 0 means unlimited.
type Filter struct {
	SubjectPrefix string
	Limit         int
}

func (f Filter) apply(quads []Quad) []Quad {
	out := quads
	if f.SubjectPrefix != "" {
		filtered := out[:0:0]
		for _, q := range out {
			if strings.HasPrefix(q.Subject, f.SubjectPrefix) {
				filtered = append(filtered, q)
			}
		}
		out = filtered
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Export serialises the dataset's quads in the given format. Turtle output
// uses the namespace prefixes registered on reg.
func (d *Dataset) Export(format Format, reg *rdf.Registry, filter Filter) (string, error) {
	quads := filter.apply(d.All())

	switch format {
	case FormatNTriples:
		return exportNTriples(quads), nil
	case FormatTurtle:
		return exportTurtle(quads, reg), nil
	case FormatJSONLD:
		return exportJSONLD(quads)
	case FormatJSON:
		return exportJSON(quads)
	default:
		return "", fmt.Errorf("graph: export: unsupported format %q", format)
	}
}

func exportNTriples(quads []Quad) string {
	var b strings.Builder
	for _, q := range quads {
		fmt.Fprintf(&b, "<%s> <%s> %s .\n", q.Subject, q.Predicate, ntriplesObject(q.Object))
	}
	return b.String()
}

func ntriplesObject(object string) string {
	if strings.HasPrefix(object, "http://") || strings.HasPrefix(object, "https://") {
		return "<" + object + ">"
	}
	return `"` + strings.ReplaceAll(object, `"`, `\"`) + `"`
}

func exportTurtle(quads []Quad, reg *rdf.Registry) string {
	var b strings.Builder
	b.WriteString("@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .\n")
	b.WriteString("@prefix skos: <http://www.w3.org/2004/02/skos/core#> .\n")
	b.WriteString("@prefix kg: <https://kgweave.dev/ontology#> .\n\n")

	bySubject := make(map[string][]Quad)
	var order []string
	for _, q := range quads {
		if _, ok := bySubject[q.Subject]; !ok {
			order = append(order, q.Subject)
		}
		bySubject[q.Subject] = append(bySubject[q.Subject], q)
	}

	for _, s := range order {
		fmt.Fprintf(&b, "<%s>\n", s)
		group := bySubject[s]
		for i, q := range group {
			sep := " ;"
			if i == len(group)-1 {
				sep = " ."
			}
			pred := reg.Compress(q.Predicate)
			fmt.Fprintf(&b, "    %s %s%s\n", pred, turtleObject(q.Object, reg), sep)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func turtleObject(object string, reg *rdf.Registry) string {
	if strings.HasPrefix(object, "http://") || strings.HasPrefix(object, "https://") {
		return "<" + reg.Compress(object) + ">"
	}
	return `"` + strings.ReplaceAll(object, `"`, `\"`) + `"`
}

func exportJSONLD(quads []Quad) (string, error) {
	bySubject := make(map[string]map[string][]string)
	var order []string
	for _, q := range quads {
		props, ok := bySubject[q.Subject]
		if !ok {
			props = make(map[string][]string)
			bySubject[q.Subject] = props
			order = append(order, q.Subject)
		}
		props[q.Predicate] = append(props[q.Predicate], q.Object)
	}

	graphList := make([]map[string]any, 0, len(order))
	for _, s := range order {
		node := map[string]any{"@id": s}
		for p, vals := range bySubject[s] {
			if len(vals) == 1 {
				node[p] = vals[0]
			} else {
				node[p] = vals
			}
		}
		graphList = append(graphList, node)
	}

	out := map[string]any{"@graph": graphList}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("graph: export jsonld: %w", err)
	}
	return string(raw), nil
}

func exportJSON(quads []Quad) (string, error) {
	raw, err := json.MarshalIndent(quads, "", "  ")
	if err != nil {
		return "", fmt.Errorf("graph: export json: %w", err)
	}
	return string(raw), nil
}
