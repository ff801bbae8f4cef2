package decompose

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kgweave/kgweave/pkg/provider/llm/mock"
	"github.com/kgweave/kgweave/pkg/rdf"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestDecompose_TwoChunks_NoRelationshipExtraction(t *testing.T) {
	provider := &mock.Provider{
		Responses: []string{
			`["Geoffrey Hinton invented backpropagation."]`,
			`[{"name":"Geoffrey Hinton","type":"person","relevance":0.9,"isEntryPoint":true,"confidence":0.9}]`,
			`["Yann LeCun developed convolutional nets."]`,
			`[{"name":"Yann LeCun","type":"person","relevance":0.9,"isEntryPoint":true,"confidence":0.9}]`,
		},
	}

	reg := rdf.NewRegistry("https://kg.test/instance")
	d := New(reg, provider, fixedNow)

	chunks := []Chunk{
		{Content: "Geoffrey Hinton invented backpropagation.", Source: "d1"},
		{Content: "Yann LeCun developed convolutional nets.", Source: "d2"},
	}

	result, err := d.Decompose(context.Background(), chunks, DefaultOptions())
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}

	if len(result.Units) != 2 {
		t.Fatalf("units = %d, want 2", len(result.Units))
	}
	if len(result.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(result.Entities))
	}

	var names []string
	for _, e := range result.Entities {
		names = append(names, e.PreferredLabel)
	}
	wantNames := map[string]bool{"Geoffrey Hinton": true, "Yann LeCun": true}
	for _, n := range names {
		if !wantNames[n] {
			t.Errorf("unexpected entity name %q", n)
		}
	}

	followCount := 0
	for _, r := range result.Relationships {
		if r.RelType == "follows" {
			followCount++
		}
	}
	if followCount != 1 {
		t.Errorf("follows relationships = %d, want 1", followCount)
	}
	if len(result.Relationships) != 1 {
		t.Errorf("total relationships = %d, want 1 (no inter-entity relationships)", len(result.Relationships))
	}
}

func TestDecompose_RelationshipExtraction(t *testing.T) {
	provider := &mock.Provider{
		Responses: []string{
			`["Geoffrey Hinton invented backpropagation."]`,
			`[{"name":"Geoffrey Hinton","type":"person","relevance":0.9,"confidence":0.9}]`,
			`["Geoffrey Hinton and Yann LeCun collaborated on deep learning."]`,
			`[{"name":"Geoffrey Hinton","type":"person","relevance":0.9,"confidence":0.9},{"name":"Yann LeCun","type":"person","relevance":0.9,"confidence":0.9}]`,
			`[{"source":"Geoffrey Hinton","target":"Yann LeCun","type":"influenced","weight":0.7}]`,
		},
	}

	reg := rdf.NewRegistry("https://kg.test/instance")
	d := New(reg, provider, fixedNow)

	chunks := []Chunk{
		{Content: "Geoffrey Hinton invented backpropagation.", Source: "d1"},
		{Content: "Geoffrey Hinton and Yann LeCun collaborated on deep learning.", Source: "d2"},
	}

	opts := DefaultOptions()
	opts.ExtractRelationships = true
	result, err := d.Decompose(context.Background(), chunks, opts)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}

	var influenced *rdf.Relationship
	for _, r := range result.Relationships {
		if r.RelType == "influenced" {
			influenced = r
		}
	}
	if influenced == nil {
		t.Fatalf("expected an 'influenced' relationship, got %+v", result.Relationships)
	}
	if influenced.Weight != 0.7 {
		t.Errorf("weight = %v, want 0.7", influenced.Weight)
	}
	if len(influenced.Evidence) != 1 {
		t.Errorf("evidence count = %d, want 1", len(influenced.Evidence))
	}
}

func TestDecompose_LLMAlwaysFails_UsesFallbacks(t *testing.T) {
	provider := &mock.Provider{Err: errors.New("llm unavailable")}
	reg := rdf.NewRegistry("https://kg.test/instance")
	d := New(reg, provider, fixedNow)

	chunks := []Chunk{
		{Content: "Marie Curie discovered radium. She won two Nobel prizes.", Source: "d1"},
	}

	result, err := d.Decompose(context.Background(), chunks, DefaultOptions())
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(result.Units) == 0 {
		t.Fatal("expected at least one unit from the sentence-split fallback")
	}
	if len(result.Entities) == 0 {
		t.Fatal("expected at least one entity from the capitalised-n-gram fallback")
	}
	for _, e := range result.Entities {
		if e.Confidence != fallbackEntityConfidence {
			t.Errorf("entity %q confidence = %v, want %v", e.PreferredLabel, e.Confidence, fallbackEntityConfidence)
		}
	}
	if result.Statistics.UnitFallbacksUsed == 0 {
		t.Error("expected UnitFallbacksUsed > 0")
	}
	if result.Statistics.EntityFallbacksUsed == 0 {
		t.Error("expected EntityFallbacksUsed > 0")
	}
}

func TestDecompose_EmptyChunks(t *testing.T) {
	provider := &mock.Provider{}
	reg := rdf.NewRegistry("https://kg.test/instance")
	d := New(reg, provider, fixedNow)

	result, err := d.Decompose(context.Background(), nil, DefaultOptions())
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(result.Units) != 0 || len(result.Entities) != 0 {
		t.Fatalf("expected zero units/entities, got %d/%d", len(result.Units), len(result.Entities))
	}
	if result.Statistics.TotalChunks != 0 {
		t.Errorf("TotalChunks = %d, want 0", result.Statistics.TotalChunks)
	}
}

func TestDecompose_EntityReuse_ExactCaseSensitiveMatch(t *testing.T) {
	provider := &mock.Provider{
		Responses: []string{
			`["Ada Lovelace wrote the first algorithm."]`,
			`[{"name":"Ada Lovelace","confidence":0.9}]`,
			`["Ada Lovelace also collaborated with Charles Babbage."]`,
			`[{"name":"Ada Lovelace","confidence":0.9},{"name":"Charles Babbage","confidence":0.9}]`,
		},
	}
	reg := rdf.NewRegistry("https://kg.test/instance")
	d := New(reg, provider, fixedNow)

	chunks := []Chunk{
		{Content: "Ada Lovelace wrote the first algorithm.", Source: "d1"},
		{Content: "Ada Lovelace also collaborated with Charles Babbage.", Source: "d2"},
	}
	result, err := d.Decompose(context.Background(), chunks, DefaultOptions())
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("entities = %d, want 2 (Ada Lovelace reused, not duplicated)", len(result.Entities))
	}
	for _, e := range result.Entities {
		if e.PreferredLabel == "Ada Lovelace" && e.Frequency != 2 {
			t.Errorf("Ada Lovelace frequency = %d, want 2", e.Frequency)
		}
	}
}

func TestDecompose_EntityReuse_FuzzyMatch(t *testing.T) {
	provider := &mock.Provider{
		Responses: []string{
			`["Elon Musk founded SpaceX."]`,
			`[{"name":"Elon Musk","confidence":0.9}]`,
			`["Elonn Musk also founded Tesla."]`,
			`[{"name":"Elonn Musk","confidence":0.9}]`,
		},
	}
	reg := rdf.NewRegistry("https://kg.test/instance")
	d := New(reg, provider, fixedNow)

	chunks := []Chunk{
		{Content: "Elon Musk founded SpaceX.", Source: "d1"},
		{Content: "Elonn Musk also founded Tesla.", Source: "d2"},
	}

	opts := DefaultOptions()
	opts.EntityDedupThreshold = 0.9
	result, err := d.Decompose(context.Background(), chunks, opts)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("entities = %d, want 1 (Elonn Musk fuzzy-merged into Elon Musk)", len(result.Entities))
	}

	e := result.Entities[0]
	if e.PreferredLabel != "Elon Musk" {
		t.Errorf("PreferredLabel = %q, want %q", e.PreferredLabel, "Elon Musk")
	}
	if e.Frequency != 2 {
		t.Errorf("Frequency = %d, want 2", e.Frequency)
	}
	found := false
	for _, alt := range e.AltLabels() {
		if alt == "Elonn Musk" {
			found = true
		}
	}
	if !found {
		t.Errorf("AltLabels() = %v, want to contain %q", e.AltLabels(), "Elonn Musk")
	}
}

func TestDecompose_EntityReuse_FuzzyDisabledByDefault(t *testing.T) {
	provider := &mock.Provider{
		Responses: []string{
			`["Elon Musk founded SpaceX."]`,
			`[{"name":"Elon Musk","confidence":0.9}]`,
			`["Elonn Musk also founded Tesla."]`,
			`[{"name":"Elonn Musk","confidence":0.9}]`,
		},
	}
	reg := rdf.NewRegistry("https://kg.test/instance")
	d := New(reg, provider, fixedNow)

	chunks := []Chunk{
		{Content: "Elon Musk founded SpaceX.", Source: "d1"},
		{Content: "Elonn Musk also founded Tesla.", Source: "d2"},
	}

	result, err := d.Decompose(context.Background(), chunks, DefaultOptions())
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("entities = %d, want 2 (fuzzy matching off with threshold 0 means no merge)", len(result.Entities))
	}
}
