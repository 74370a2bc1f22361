package tools

import "testing"

func TestLocalityClassification(t *testing.T) {
	r := NewRegistry()

	localOnly := []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep", "ListDir"}
	for _, name := range localOnly {
		if !r.IsLocalOnly(name) {
			t.Errorf("expected %s to be local-only", name)
		}
	}

	eitherSide := []string{"MemorySave", "MemorySearch"}
	for _, name := range eitherSide {
		if r.IsLocalOnly(name) {
			t.Errorf("expected %s to run on either side", name)
		}
	}
}

func TestUnknownToolTreatedAsLocalOnly(t *testing.T) {
	r := NewRegistry()
	if !r.IsLocalOnly("TotallyMadeUp") {
		t.Error("unknown tools must be classified local-only")
	}
}

func TestConfigExtendsLocalOnly(t *testing.T) {
	r := NewRegistry("MemorySearch")
	if !r.IsLocalOnly("MemorySearch") {
		t.Error("config override should mark MemorySearch local-only")
	}
	// Built-in classification is unaffected for the rest.
	if r.IsLocalOnly("MemorySave") {
		t.Error("MemorySave should still run on either side")
	}
}

func TestParamsSubset(t *testing.T) {
	r := NewRegistry()

	params := r.Params([]string{"Read", "Grep", "NoSuchTool"})
	if len(params) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(params))
	}

	// Registration order is preserved regardless of request order.
	if got := params[0].OfTool.Name; got != "Read" {
		t.Errorf("first schema = %s, want Read", got)
	}
	if got := params[1].OfTool.Name; got != "Grep" {
		t.Errorf("second schema = %s, want Grep", got)
	}
}

func TestLookup(t *testing.T) {
	r := NewRegistry()

	def, ok := r.Lookup("Bash")
	if !ok {
		t.Fatal("expected Bash to be registered")
	}
	if def.Locality != LocalOnly {
		t.Error("Bash should be local-only")
	}

	if _, ok := r.Lookup("Missing"); ok {
		t.Error("Lookup should fail for unregistered tools")
	}
}
