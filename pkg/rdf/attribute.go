package rdf

import "time"

// Attribute is an entity-scoped summary node produced by augmentation
// rather than direct extraction (e.g. a generated character sketch).
type Attribute struct {
	Element

	OwningEntity string
	Category     string
}

// NewAttribute constructs an Attribute and, via the returned triple,
// back-references it from the owning entity with a hasAttribute triple (the
// caller is expected to add that triple onto the owning Entity's Element,
// since AddTriple is a method on the subject's own Element).
func NewAttribute(reg *Registry, now time.Time, owningEntity, category, content string) *Attribute {
	a := &Attribute{
		Element:      NewElement(reg.Mint("Attribute"), "Attribute", now),
		OwningEntity: owningEntity,
		Category:     category,
	}
	a.SetContent(now, content)
	a.AddTriple(now, "kg:owningEntity", owningEntity)
	a.AddTriple(now, "kg:category", category)
	return a
}
