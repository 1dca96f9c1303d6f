package catalog

import (
	"context"
	"strings"
	"testing"
)

func TestOrderedQuestions_StableOrder(t *testing.T) {
	cat := NewBuiltin()
	ctx := context.Background()

	first, err := cat.OrderedQuestions(ctx, "", "", Filters{})
	if err != nil {
		t.Fatalf("OrderedQuestions failed: %v", err)
	}
	second, err := cat.OrderedQuestions(ctx, "", "", Filters{})
	if err != nil {
		t.Fatalf("OrderedQuestions failed: %v", err)
	}

	if len(first) == 0 {
		t.Fatal("Expected non-empty catalog")
	}
	if len(first) != len(second) {
		t.Fatalf("Expected stable length, got %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Order differs at %d: %v vs %v", i, first[i], second[i])
		}
	}

	for i := 1; i < len(first); i++ {
		if first[i-1].SubcategoryID >= first[i].SubcategoryID {
			t.Errorf("Expected ascending order, got %q before %q",
				first[i-1].SubcategoryID, first[i].SubcategoryID)
		}
	}
}

func TestOrderedQuestions_FunctionFilter(t *testing.T) {
	cat := NewBuiltin()

	questions, err := cat.OrderedQuestions(context.Background(), "", "", Filters{Functions: []string{"GV"}})
	if err != nil {
		t.Fatalf("OrderedQuestions failed: %v", err)
	}
	if len(questions) == 0 {
		t.Fatal("Expected GV questions")
	}
	for _, q := range questions {
		if !strings.HasPrefix(q.SubcategoryID, "GV.") {
			t.Errorf("Expected only GV subcategories, got %q", q.SubcategoryID)
		}
	}
}

func TestOrderedQuestions_InvalidFunction(t *testing.T) {
	cat := NewBuiltin()

	_, err := cat.OrderedQuestions(context.Background(), "", "", Filters{Functions: []string{"XX"}})
	if err == nil {
		t.Error("Expected error for unknown function filter")
	}
}

func TestOrderedQuestions_QuickAssessment(t *testing.T) {
	cat := NewBuiltin()

	questions, err := cat.OrderedQuestions(context.Background(), "quick", "", Filters{})
	if err != nil {
		t.Fatalf("OrderedQuestions failed: %v", err)
	}
	for _, q := range questions {
		if !strings.HasSuffix(q.SubcategoryID, "-01") {
			t.Errorf("Quick assessment should keep only first controls, got %q", q.SubcategoryID)
		}
	}
	// One category (RS.AN) starts at -03 and one (RC.CO) at -03, one (DE.AE)
	// at -02; those drop out of a quick assessment entirely.
	if len(questions) >= cat.Size() {
		t.Errorf("Quick assessment should trim the catalog: %d of %d", len(questions), cat.Size())
	}
}

func TestOrderedQuestions_SmallOrg(t *testing.T) {
	cat := NewBuiltin()

	questions, err := cat.OrderedQuestions(context.Background(), "", "small", Filters{})
	if err != nil {
		t.Fatalf("OrderedQuestions failed: %v", err)
	}
	for _, q := range questions {
		if controlNumber(q.SubcategoryID) > 5 {
			t.Errorf("Small-org scoping should drop controls above 05, got %q", q.SubcategoryID)
		}
	}
}

func TestNew_RejectsMalformedIdentifiers(t *testing.T) {
	_, err := New([]Subcategory{{ID: "GOVERN-1", CategoryTitle: "bad"}})
	if err == nil {
		t.Error("Expected error for malformed subcategory identifier")
	}

	_, err = New([]Subcategory{
		{ID: "GV.OC-01", CategoryTitle: "a"},
		{ID: "GV.OC-01", CategoryTitle: "b"},
	})
	if err == nil {
		t.Error("Expected error for duplicate subcategory identifier")
	}
}

func TestIdentifierGrammar(t *testing.T) {
	if !ValidSubcategoryID("GV.OC-01") {
		t.Error("GV.OC-01 should be a valid subcategory ID")
	}
	if ValidSubcategoryID("GV.OC") {
		t.Error("GV.OC is a category, not a subcategory")
	}
	if !ValidCategoryID("PR.AA") {
		t.Error("PR.AA should be a valid category ID")
	}

	if got := CategoryOf("GV.OC-01"); got != "GV.OC" {
		t.Errorf("CategoryOf = %q, want GV.OC", got)
	}
	if got := FunctionOf("GV.OC-01"); got != "GV" {
		t.Errorf("FunctionOf = %q, want GV", got)
	}
}

func TestParseFunction(t *testing.T) {
	fn, err := ParseFunction("govern")
	if err != nil || fn != Govern {
		t.Errorf("ParseFunction(govern) = %v, %v", fn, err)
	}
	fn, err = ParseFunction("RC")
	if err != nil || fn != Recover {
		t.Errorf("ParseFunction(RC) = %v, %v", fn, err)
	}
	if _, err := ParseFunction("nope"); err == nil {
		t.Error("Expected error for unknown function")
	}
	if got := Detect.FullName(); got != "DETECT" {
		t.Errorf("FullName = %q, want DETECT", got)
	}
}

func TestLoadFramework(t *testing.T) {
	payload := `{
		"response": {
			"elements": {
				"elements": [
					{"element_identifier": "GV", "element_type": "function", "title": "GOVERN"},
					{"element_identifier": "GV.OC", "element_type": "category", "title": "Organizational Context"},
					{"element_identifier": "GV.OC-01", "element_type": "subcategory", "text": "Mission is understood"},
					{"element_identifier": "GV.OC-02", "element_type": "subcategory", "text": "Stakeholders are understood"}
				]
			}
		}
	}`

	cat, err := LoadFramework(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("LoadFramework failed: %v", err)
	}
	if cat.Size() != 2 {
		t.Fatalf("Expected 2 subcategories, got %d", cat.Size())
	}

	questions, err := cat.OrderedQuestions(context.Background(), "", "", Filters{})
	if err != nil {
		t.Fatalf("OrderedQuestions failed: %v", err)
	}
	if questions[0].QuestionID != "gv-oc-01" {
		t.Errorf("Expected question id gv-oc-01, got %q", questions[0].QuestionID)
	}
	if !strings.Contains(questions[0].Text, "Organizational Context") {
		t.Errorf("Expected category title in question text, got %q", questions[0].Text)
	}
}

func TestLoadFramework_Empty(t *testing.T) {
	if _, err := LoadFramework(strings.NewReader(`{}`)); err == nil {
		t.Error("Expected error for framework with no subcategories")
	}
}
