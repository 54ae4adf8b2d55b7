package expand

import (
	"reflect"
	"testing"
)

func TestExpand_None(t *testing.T) {
	e := New(StrategyNone, nil)

	got := e.Expand("fast car", 3)
	if !reflect.DeepEqual(got, []string{"fast car"}) {
		t.Errorf("expected original only, got %v", got)
	}
}

func TestExpand_UnknownStrategy(t *testing.T) {
	e := New(Strategy("llm"), nil)

	got := e.Expand("fast car", 3)
	if !reflect.DeepEqual(got, []string{"fast car"}) {
		t.Errorf("unknown strategy must degrade to original, got %v", got)
	}
}

func TestExpand_Synonyms(t *testing.T) {
	e := New(StrategySynonyms, nil)

	got := e.Expand("fast car", 3)
	want := []string{"fast car", "quick car", "rapid car"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpand_OriginalAlwaysFirst(t *testing.T) {
	e := New(StrategySynonyms, nil)

	for _, query := range []string{"fast car", "the weather", "zzyzx"} {
		got := e.Expand(query, 3)
		if len(got) == 0 || got[0] != query {
			t.Errorf("query %q: original not first in %v", query, got)
		}
	}
}

func TestExpand_RespectsMaxVariants(t *testing.T) {
	e := New(StrategySynonyms, nil)

	got := e.Expand("fast car", 2)
	if len(got) != 2 {
		t.Errorf("expected 2 variants, got %v", got)
	}

	got = e.Expand("fast car", 1)
	if !reflect.DeepEqual(got, []string{"fast car"}) {
		t.Errorf("maxVariants=1 must return only the original, got %v", got)
	}
}

func TestExpand_NoSynonymsAvailable(t *testing.T) {
	e := New(StrategySynonyms, map[string][]string{})

	got := e.Expand("unmatchable gibberish", 3)
	if !reflect.DeepEqual(got, []string{"unmatchable gibberish"}) {
		t.Errorf("expected degradation to original, got %v", got)
	}
}

func TestExpand_StopwordsSkipped(t *testing.T) {
	e := New(StrategySynonyms, map[string][]string{
		"the": {"a"},
		"car": {"automobile"},
	})

	got := e.Expand("the car", 3)
	want := []string{"the car", "the automobile"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpand_DedupesVariants(t *testing.T) {
	e := New(StrategySynonyms, map[string][]string{
		"fast": {"fast", "quick"},
	})

	got := e.Expand("fast car", 5)
	want := []string{"fast car", "quick car"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpand_Templates(t *testing.T) {
	e := New(StrategyTemplates, nil)

	got := e.Expand("garbage collection", 3)
	want := []string{
		"garbage collection",
		"What is garbage collection?",
		"garbage collection explained",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
