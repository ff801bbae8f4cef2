package hyde

import "github.com/kgweave/kgweave/pkg/graph"

// Hypothesis is one subject's full quad set, as surfaced by Query.
type Hypothesis struct {
	Subject string
	Quads   []graph.Quad
}

// Query scans ds for subjects carrying kg:maybe="true" and returns each with
// its full set of quads, filtered by equality over the requested predicates
// (filters). An empty filters map matches every maybe=true subject.
func Query(ds *graph.Dataset, filters map[string]string) []Hypothesis {
	seen := make(map[string]struct{})
	var subjects []string
	for _, q := range ds.All() {
		if q.Predicate != "kg:maybe" || q.Object != "true" {
			continue
		}
		if _, ok := seen[q.Subject]; ok {
			continue
		}
		seen[q.Subject] = struct{}{}
		subjects = append(subjects, q.Subject)
	}

	var out []Hypothesis
	for _, subj := range subjects {
		quads := ds.Match(graph.Pattern{Subject: subj})
		if !matchesFilters(quads, filters) {
			continue
		}
		out = append(out, Hypothesis{Subject: subj, Quads: quads})
	}
	return out
}

// matchesFilters reports whether quads contains, for every key in filters, a
// quad with that predicate and an equal object value.
func matchesFilters(quads []graph.Quad, filters map[string]string) bool {
	for predicate, want := range filters {
		found := false
		for _, q := range quads {
			if q.Predicate == predicate && q.Object == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
