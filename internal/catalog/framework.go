package catalog

import (
	"encoding/json"
	"fmt"
	"io"
)

// category rows for the embedded NIST CSF 2.0 framework. Control numbers
// within a category are not always contiguous (withdrawn controls keep
// their numbers reserved), so each category lists its controls explicitly.
type frameworkCategory struct {
	id       string
	title    string
	controls []int
}

var csf20Categories = []frameworkCategory{
	{"GV.OC", "Organizational Context", seq(1, 5)},
	{"GV.RM", "Risk Management Strategy", seq(1, 7)},
	{"GV.RR", "Roles, Responsibilities, and Authorities", seq(1, 4)},
	{"GV.PO", "Policy", seq(1, 2)},
	{"GV.OV", "Oversight", seq(1, 3)},
	{"GV.SC", "Cybersecurity Supply Chain Risk Management", seq(1, 10)},
	{"ID.AM", "Asset Management", []int{1, 2, 3, 4, 5, 7, 8}},
	{"ID.RA", "Risk Assessment", seq(1, 10)},
	{"ID.IM", "Improvement", seq(1, 4)},
	{"PR.AA", "Identity Management, Authentication, and Access Control", seq(1, 6)},
	{"PR.AT", "Awareness and Training", seq(1, 2)},
	{"PR.DS", "Data Security", []int{1, 2, 10, 11}},
	{"PR.PS", "Platform Security", seq(1, 6)},
	{"PR.IR", "Technology Infrastructure Resilience", seq(1, 4)},
	{"DE.CM", "Continuous Monitoring", []int{1, 2, 3, 6, 9}},
	{"DE.AE", "Adverse Event Analysis", []int{2, 3, 4, 6, 7, 8}},
	{"RS.MA", "Incident Management", seq(1, 5)},
	{"RS.AN", "Incident Analysis", []int{3, 6, 7, 8}},
	{"RS.CO", "Incident Response Reporting and Communication", []int{2, 3}},
	{"RS.MI", "Incident Mitigation", seq(1, 2)},
	{"RC.RP", "Incident Recovery Plan Execution", seq(1, 6)},
	{"RC.CO", "Incident Recovery Communication", []int{3, 4}},
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func builtinSubcategories() []Subcategory {
	var subs []Subcategory
	for _, cat := range csf20Categories {
		for _, n := range cat.controls {
			subs = append(subs, Subcategory{
				ID:            fmt.Sprintf("%s-%02d", cat.id, n),
				CategoryTitle: cat.title,
			})
		}
	}
	return subs
}

// frameworkFile mirrors the NIST CSF reference-tool export layout.
type frameworkFile struct {
	Response struct {
		Elements struct {
			Elements []frameworkElement `json:"elements"`
		} `json:"elements"`
	} `json:"response"`
}

type frameworkElement struct {
	ElementIdentifier string `json:"element_identifier"`
	ElementType       string `json:"element_type"`
	Title             string `json:"title"`
	Text              string `json:"text"`
}

// LoadFramework builds a catalog from a CSF reference-tool JSON export.
// Only subcategory elements contribute questions; category elements supply
// the titles used in question text.
func LoadFramework(r io.Reader) (*FrameworkCatalog, error) {
	var file frameworkFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode framework file: %w", err)
	}

	titles := make(map[string]string)
	for _, el := range file.Response.Elements.Elements {
		if el.ElementType == "category" && ValidCategoryID(el.ElementIdentifier) {
			titles[el.ElementIdentifier] = el.Title
		}
	}

	var subs []Subcategory
	for _, el := range file.Response.Elements.Elements {
		if el.ElementType != "subcategory" {
			continue
		}
		subs = append(subs, Subcategory{
			ID:            el.ElementIdentifier,
			CategoryTitle: titles[CategoryOf(el.ElementIdentifier)],
		})
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("framework file contains no subcategory elements")
	}
	return New(subs)
}
