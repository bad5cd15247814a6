// Package catalog holds the ordered section definitions for each work type.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/osvaldoandrade/dossier/pkg/domain"
)

var ErrUnknownWorkType = errors.New("unknown work type")

type entry struct {
	name  string
	tmpl  *template.Template
	shape domain.Shape
}

var catalogs = map[domain.WorkType][]entry{
	domain.WorkTypeReport:      compile(reportSections),
	domain.WorkTypeInfographic: compile(infographicSections),
}

type definition struct {
	name      string
	directive string
	shape     domain.Shape
}

func compile(defs []definition) []entry {
	out := make([]entry, len(defs))
	for i, d := range defs {
		out[i] = entry{
			name:  d.name,
			tmpl:  template.Must(template.New(d.name).Option("missingkey=error").Parse(d.directive)),
			shape: d.shape,
		}
	}
	return out
}

// SectionsFor returns the catalog for workType with subjectName interpolated
// into every directive. The order is the delivery order of the artifact.
func SectionsFor(workType domain.WorkType, subjectName string) ([]domain.SectionSpec, error) {
	entries, ok := catalogs[workType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkType, workType)
	}
	data := struct{ Subject string }{Subject: subjectName}
	specs := make([]domain.SectionSpec, 0, len(entries))
	for _, e := range entries {
		var b strings.Builder
		if err := e.tmpl.Execute(&b, data); err != nil {
			return nil, fmt.Errorf("render directive %s: %w", e.name, err)
		}
		specs = append(specs, domain.SectionSpec{
			Name:      e.name,
			Directive: strings.TrimSpace(b.String()),
			Shape:     e.shape,
		})
	}
	return specs, nil
}

// MustSections panics when workType has no catalog. Used while wiring
// pipelines so a misconfigured work type stops the process at startup.
func MustSections(workType domain.WorkType) []domain.SectionSpec {
	specs, err := SectionsFor(workType, "")
	if err != nil {
		panic(err)
	}
	return specs
}

// Names lists section names for workType in catalog order.
func Names(workType domain.WorkType) []string {
	entries := catalogs[workType]
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}
