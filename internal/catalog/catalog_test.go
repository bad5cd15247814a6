package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/osvaldoandrade/dossier/pkg/domain"
)

func TestSectionsForReport(t *testing.T) {
	specs, err := SectionsFor(domain.WorkTypeReport, "Acme Robotics")
	if err != nil {
		t.Fatalf("SectionsFor: %v", err)
	}
	want := []string{
		"company_overview", "founding_team", "problem_statement", "solution", "market_opportunity",
		"business_model", "competitive_landscape", "traction", "go_to_market", "deal_details", "risk_challenges",
	}
	if len(specs) != len(want) {
		t.Fatalf("got %d sections, want %d", len(specs), len(want))
	}
	for i, s := range specs {
		if s.Name != want[i] {
			t.Errorf("section %d = %s, want %s", i, s.Name, want[i])
		}
		if s.Shape.Kind != domain.ShapeFreeText {
			t.Errorf("%s: expected free text shape", s.Name)
		}
		if !strings.Contains(s.Directive, "Acme Robotics") {
			t.Errorf("%s: subject not interpolated", s.Name)
		}
		if strings.Contains(s.Directive, "{{") {
			t.Errorf("%s: template left unrendered", s.Name)
		}
	}
}

func TestSectionsForInfographic(t *testing.T) {
	specs, err := SectionsFor(domain.WorkTypeInfographic, "Acme")
	if err != nil {
		t.Fatalf("SectionsFor: %v", err)
	}
	if len(specs) != 2 || specs[0].Name != "product" || specs[1].Name != "financial_metric" {
		t.Fatalf("unexpected sections: %+v", specs)
	}
	for _, s := range specs {
		if s.Shape.Kind != domain.ShapeStructured || len(s.Shape.Fields) != 6 {
			t.Errorf("%s: unexpected shape %+v", s.Name, s.Shape)
		}
		for _, f := range s.Shape.Fields {
			if !strings.Contains(s.Directive, `"`+f+`"`) {
				t.Errorf("%s: directive does not ask for %s", s.Name, f)
			}
		}
	}
}

func TestSectionNamesAreUnique(t *testing.T) {
	for _, wt := range domain.WorkTypes {
		seen := map[string]bool{}
		for _, n := range Names(wt) {
			if seen[n] {
				t.Errorf("%s: duplicate section %s", wt, n)
			}
			seen[n] = true
		}
	}
}

func TestSectionsForIsPure(t *testing.T) {
	a, _ := SectionsFor(domain.WorkTypeReport, "x")
	b, _ := SectionsFor(domain.WorkTypeReport, "x")
	for i := range a {
		if a[i].Directive != b[i].Directive {
			t.Fatalf("directive %s differs between calls", a[i].Name)
		}
	}
}

func TestUnknownWorkType(t *testing.T) {
	if _, err := SectionsFor(domain.WorkType("memo"), "x"); !errors.Is(err, ErrUnknownWorkType) {
		t.Fatalf("expected ErrUnknownWorkType, got %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("MustSections should panic for unknown work type")
		}
	}()
	MustSections(domain.WorkType("memo"))
}
