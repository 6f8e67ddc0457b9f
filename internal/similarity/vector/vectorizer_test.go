package vector

import (
	"math"
	"testing"
)

const eps = 1e-9

func TestFitVocabularyAndIDF(t *testing.T) {
	texts := []string{
		"Wireless Mouse ergonomic wireless mouse",
		"Wireless Keyboard mechanical wireless keyboard",
		"Desk Lamp LED desk lamp",
	}
	model, m := Fit(texts, 0)

	wantTerms := []string{"desk", "ergonomic", "keyboard", "lamp", "led", "mechanical", "mouse", "wireless"}
	if len(model.Terms) != len(wantTerms) {
		t.Fatalf("terms = %v, want %v", model.Terms, wantTerms)
	}
	for i, term := range wantTerms {
		if model.Terms[i] != term {
			t.Errorf("Terms[%d] = %q, want %q", i, model.Terms[i], term)
		}
	}

	// wireless appears in 2 of 3 documents: ln(4/3) + 1
	j, ok := model.Column("wireless")
	if !ok {
		t.Fatal("wireless not in vocabulary")
	}
	if want := math.Log(4.0/3.0) + 1; math.Abs(model.IDF[j]-want) > eps {
		t.Errorf("idf(wireless) = %v, want %v", model.IDF[j], want)
	}
	// desk appears in 1 of 3 documents: ln(4/2) + 1
	j, _ = model.Column("desk")
	if want := math.Log(2) + 1; math.Abs(model.IDF[j]-want) > eps {
		t.Errorf("idf(desk) = %v, want %v", model.IDF[j], want)
	}

	if m.Rows != 3 || m.Cols != len(wantTerms) {
		t.Fatalf("shape = %dx%d, want 3x%d", m.Rows, m.Cols, len(wantTerms))
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	for i, n := range m.Norms() {
		if math.Abs(n-1) > eps {
			t.Errorf("row %d norm = %v, want 1", i, n)
		}
	}
}

func TestFitMaxFeaturesKeepsMostFrequentTerms(t *testing.T) {
	texts := []string{
		"alpha alpha alpha beta beta gamma",
		"alpha beta delta",
	}
	model, m := Fit(texts, 2)
	if got := model.Terms; len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("Terms = %v, want [alpha beta]", got)
	}
	if m.Cols != 2 {
		t.Errorf("Cols = %d, want 2", m.Cols)
	}
}

func TestFitTieBreakByTerm(t *testing.T) {
	model, _ := Fit([]string{"zeta yak xenon"}, 2)
	if got := model.Terms; len(got) != 2 || got[0] != "xenon" || got[1] != "yak" {
		t.Fatalf("Terms = %v, want [xenon yak]", got)
	}
}

func TestFitEmptyVocabulary(t *testing.T) {
	model, m := Fit([]string{"the and of", " ", "a"}, 0)
	if model.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", model.Len())
	}
	if m.Rows != 3 || m.Cols != 0 || m.NNZ() != 0 {
		t.Fatalf("matrix = %+v, want 3x0 with no values", m)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := model.Validate(); err != nil {
		t.Fatalf("model Validate() error = %v", err)
	}
}

func TestFitIgnoresTermsOutsideVocabulary(t *testing.T) {
	model, m := Fit([]string{"red shoe shoe", "blue shoe", "green hat"}, 1)
	if model.Len() != 1 || model.Terms[0] != "shoe" {
		t.Fatalf("Terms = %v, want [shoe]", model.Terms)
	}
	if m.Rows != 3 || m.Cols != 1 {
		t.Fatalf("shape = %dx%d, want 3x1", m.Rows, m.Cols)
	}
	if got, want := Cosine(m.Row(0), m.Row(1)), 1.0; math.Abs(got-want) > eps {
		t.Errorf("cosine of rows sharing only the kept term = %v, want %v", got, want)
	}
	if m.Row(2).Norm() != 0 {
		t.Errorf("row with only dropped terms should be zero, got %+v", m.Row(2))
	}
}

func TestModelValidate(t *testing.T) {
	tests := []struct {
		name  string
		model *Model
		ok    bool
	}{
		{"valid", &Model{Terms: []string{"a", "b"}, IDF: []float64{1, 2}}, true},
		{"length mismatch", &Model{Terms: []string{"a"}, IDF: []float64{1, 2}}, false},
		{"unordered", &Model{Terms: []string{"b", "a"}, IDF: []float64{1, 1}}, false},
		{"duplicate", &Model{Terms: []string{"a", "a"}, IDF: []float64{1, 1}}, false},
		{"zero idf", &Model{Terms: []string{"a"}, IDF: []float64{0}}, false},
		{"nan idf", &Model{Terms: []string{"a"}, IDF: []float64{math.NaN()}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
