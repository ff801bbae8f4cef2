package hyde

import (
	"context"
	"testing"
	"time"

	"github.com/kgweave/kgweave/pkg/provider/llm/mock"
	"github.com/kgweave/kgweave/pkg/rdf"
)

func fixedNow() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

const backpropParagraph1 = `Backpropagation is the algorithm used to train multilayer neural networks by propagating the error gradient backward from the output layer to the input layer. It computes the partial derivative of the loss function with respect to each weight using the chain rule. Geoffrey Hinton helped popularize the technique in the 1980s, and it remains the foundation of modern deep learning training. The algorithm alternates between a forward pass, which computes activations, and a backward pass, which computes gradients layer by layer.`

const backpropParagraph2 = `In practical terms, backpropagation works by first running input data through the network to produce an output, then comparing that output against the expected target to compute an error signal. This error is then propagated backward through each layer, and the gradients are used to update the weights via gradient descent. However, training deep networks can suffer from vanishing or exploding gradients, which motivated later techniques such as batch normalization and residual connections. The method is therefore central to nearly every modern neural network architecture.`

func TestGenerate_TwoHypotheses_TaggedMaybeWithJitteredConfidence(t *testing.T) {
	reg := rdf.NewRegistry("https://kg.test/instance")
	provider := &mock.Provider{Responses: []string{backpropParagraph1, backpropParagraph2}}
	engine := New(reg, provider, 42, fixedNow())

	result, err := engine.Generate(context.Background(), "What is backpropagation?", Options{HypothesesPerQuery: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(result.Hypotheses) != 2 {
		t.Fatalf("got %d hypotheses, want 2", len(result.Hypotheses))
	}
	if len(result.Relationships) != 2 {
		t.Fatalf("got %d relationships, want 2", len(result.Relationships))
	}

	seenConfidence := make(map[float64]bool)
	for i, u := range result.Hypotheses {
		if !u.Maybe {
			t.Errorf("hypothesis %d: Maybe = false, want true", i)
		}
		if u.SubType() != "hypothesis" {
			t.Errorf("hypothesis %d: SubType = %q, want %q", i, u.SubType(), "hypothesis")
		}
		if u.Confidence < 0.1 || u.Confidence > 0.95 {
			t.Errorf("hypothesis %d: confidence %v out of [0.1,0.95]", i, u.Confidence)
		}
		seenConfidence[u.Confidence] = true
	}
	if len(seenConfidence) < 2 {
		t.Errorf("expected jitter to differentiate confidences, got identical values: %v", result.Hypotheses[0].Confidence)
	}

	for i, rel := range result.Relationships {
		if rel.RelType != "hypothetical-answer" {
			t.Errorf("relationship %d: RelType = %q, want hypothetical-answer", i, rel.RelType)
		}
		if !rel.Maybe {
			t.Errorf("relationship %d: Maybe = false, want true", i)
		}
		if rel.Target != result.Hypotheses[i].URI() {
			t.Errorf("relationship %d: target %q does not match hypothesis %q", i, rel.Target, result.Hypotheses[i].URI())
		}
	}

	if len(provider.Calls) != 2 {
		t.Fatalf("got %d LLM calls, want 2", len(provider.Calls))
	}
	t0 := provider.Calls[0].Opts.Temperature
	t1 := provider.Calls[1].Opts.Temperature
	if t1-t0 < 0.099 || t1-t0 > 0.101 {
		t.Errorf("temperature step = %v, want ~0.1", t1-t0)
	}

	if result.Dataset.Len() == 0 {
		t.Error("expected dataset to be populated by Export")
	}
}

func TestGenerate_DefaultsToThreeHypotheses(t *testing.T) {
	reg := rdf.NewRegistry("https://kg.test/instance")
	provider := &mock.Provider{Response: backpropParagraph1}
	engine := New(reg, provider, 1, fixedNow())

	result, err := engine.Generate(context.Background(), "What is backpropagation?", Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Hypotheses) != 3 {
		t.Fatalf("got %d hypotheses, want 3 (default)", len(result.Hypotheses))
	}
}

func TestGenerate_LLMFailure_SkipsThatHypothesis(t *testing.T) {
	reg := rdf.NewRegistry("https://kg.test/instance")
	provider := &mock.Provider{Err: context.DeadlineExceeded}
	engine := New(reg, provider, 1, fixedNow())

	result, err := engine.Generate(context.Background(), "What is backpropagation?", Options{HypothesesPerQuery: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Hypotheses) != 0 {
		t.Fatalf("got %d hypotheses, want 0 when every LLM call fails", len(result.Hypotheses))
	}
}

func TestGenerate_ReExtractEntities_ScalesConfidence(t *testing.T) {
	reg := rdf.NewRegistry("https://kg.test/instance")
	provider := &mock.Provider{Responses: []string{
		backpropParagraph1,
		`[{"name":"Geoffrey Hinton"},{"name":"Backpropagation"}]`,
	}}
	engine := New(reg, provider, 7, fixedNow())

	result, err := engine.Generate(context.Background(), "What is backpropagation?", Options{
		HypothesesPerQuery: 1,
		ReExtractEntities:  true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(result.Entities))
	}

	hypothesisConfidence := result.Hypotheses[0].Confidence
	for _, e := range result.Entities {
		if !e.Maybe {
			t.Errorf("entity %q: Maybe = false, want true", e.PreferredLabel)
		}
		want := hypothesisConfidence * 0.8
		if want < 0.1 {
			want = 0.1
		}
		if diff := e.MaybeScore - want; diff > 0.001 || diff < -0.001 {
			t.Errorf("entity %q: confidence %v, want ~%v", e.PreferredLabel, e.MaybeScore, want)
		}
	}

	mentionCount := 0
	for _, rel := range result.Relationships {
		if rel.RelType == "mentions" {
			mentionCount++
		}
	}
	if mentionCount != 2 {
		t.Errorf("got %d mentions relationships, want 2", mentionCount)
	}
}
