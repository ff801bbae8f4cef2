package rdf

import (
	"fmt"
	"time"
)

// CommunityElement aggregates a summary over a detected cluster of
// entities/units. The community-detection algorithm itself is an external
// graph-analytic plug-in and is not part of this module; CommunityElement
// only models the resulting node.
type CommunityElement struct {
	Element

	Members  map[string]struct{}
	Cohesion float64 // [0,1]
}

// NewCommunityElement constructs a CommunityElement over the given member
// URIs with the given cohesion score.
func NewCommunityElement(reg *Registry, now time.Time, members []string, cohesion float64, summary string) *CommunityElement {
	c := &CommunityElement{
		Element:  NewElement(reg.Mint("Community"), "CommunityElement", now),
		Members:  make(map[string]struct{}, len(members)),
		Cohesion: clamp01(cohesion),
	}
	c.SetContent(now, summary)
	for _, m := range members {
		c.Members[m] = struct{}{}
		c.AddTriple(now, "kg:hasMember", m)
	}
	return c
}

// Export appends the embedded Element's triples plus kg:cohesion, so the
// communities operation handler can recover a community's cohesion score by
// walking the dataset alone.
func (c *CommunityElement) Export(add func(subject, predicate, object, graph string)) {
	c.Element.Export(add)
	add(c.URI(), "kg:cohesion", fmt.Sprintf("%.4f", c.Cohesion), "")
}
