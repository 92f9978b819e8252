package graph

import (
	"testing"

	"krill/core/recipe"
)

func linearRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		ServiceOrder: []string{"a", "b", "c"},
		Services: map[string]*recipe.Service{
			"a": {Name: "a", Dependencies: []recipe.Dependency{{Name: "b", Condition: recipe.ConditionStarted}}},
			"b": {Name: "b", Dependencies: []recipe.Dependency{{Name: "c", Condition: recipe.ConditionStarted}}},
			"c": {Name: "c"},
		},
	}
}

func TestLayersOrdersDependenciesFirst(t *testing.T) {
	g := Build(linearRecipe())
	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected cycle: %v", err)
	}
	layers := g.Layers()
	if len(layers) != 3 {
		t.Fatalf("layers = %v", layers)
	}
	if layers[0][0] != "c" || layers[1][0] != "b" || layers[2][0] != "a" {
		t.Fatalf("layers = %v, want c,b,a", layers)
	}
}

func TestShutdownLayersIsReverse(t *testing.T) {
	g := Build(linearRecipe())
	up := g.Layers()
	down := g.ShutdownLayers()
	if len(up) != len(down) {
		t.Fatalf("layer count mismatch")
	}
	for i := range up {
		if up[i][0] != down[len(down)-1-i][0] {
			t.Fatalf("shutdown layers not reversed: %v vs %v", up, down)
		}
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	rec := &recipe.Recipe{
		ServiceOrder: []string{"a", "b"},
		Services: map[string]*recipe.Service{
			"a": {Name: "a", Dependencies: []recipe.Dependency{{Name: "b", Condition: recipe.ConditionStarted}}},
			"b": {Name: "b", Dependencies: []recipe.Dependency{{Name: "a", Condition: recipe.ConditionStarted}}},
		},
	}
	g := Build(rec)
	err := g.Validate()
	cerr, ok := err.(*CyclicDependencyError)
	if !ok {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
	if len(cerr.Services) != 2 {
		t.Fatalf("cycle services = %v", cerr.Services)
	}
}

func TestCascadeSetIsTransitiveClosure(t *testing.T) {
	g := Build(linearRecipe())
	cascade := g.CascadeSet("c")
	if len(cascade) != 2 {
		t.Fatalf("cascade(c) = %v, want [a b] in some order", cascade)
	}
	found := map[string]bool{}
	for _, s := range cascade {
		found[s] = true
	}
	if !found["a"] || !found["b"] {
		t.Fatalf("cascade(c) = %v", cascade)
	}
}
