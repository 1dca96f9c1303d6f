// Package catalog supplies the ordered question list for an assessment
// configuration, backed by the NIST CSF 2.0 framework taxonomy.
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Function is a core CSF 2.0 function code.
type Function string

const (
	Govern   Function = "GV"
	Identify Function = "ID"
	Protect  Function = "PR"
	Detect   Function = "DE"
	Respond  Function = "RS"
	Recover  Function = "RC"
)

var functionNames = map[Function]string{
	Govern:   "GOVERN",
	Identify: "IDENTIFY",
	Protect:  "PROTECT",
	Detect:   "DETECT",
	Respond:  "RESPOND",
	Recover:  "RECOVER",
}

// ParseFunction converts a code or full name into a Function.
func ParseFunction(v string) (Function, error) {
	upper := strings.ToUpper(strings.TrimSpace(v))
	for fn, name := range functionNames {
		if upper == string(fn) || upper == name {
			return fn, nil
		}
	}
	return "", fmt.Errorf("invalid CSF function: %q", v)
}

// FullName returns the function's full name, e.g. "GOVERN" for GV.
func (f Function) FullName() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return string(f)
}

// Identifier grammar from the CSF 2.0 framework document.
var (
	categoryIDPattern    = regexp.MustCompile(`^[A-Z]{2}\.[A-Z]{2}$`)
	subcategoryIDPattern = regexp.MustCompile(`^[A-Z]{2}\.[A-Z]{2}-\d{2}$`)
)

// ValidSubcategoryID reports whether id follows the XX.YY-NN grammar.
func ValidSubcategoryID(id string) bool {
	return subcategoryIDPattern.MatchString(id)
}

// ValidCategoryID reports whether id follows the XX.YY grammar.
func ValidCategoryID(id string) bool {
	return categoryIDPattern.MatchString(id)
}

// CategoryOf returns the parent category of a subcategory ID,
// e.g. "GV.OC" for "GV.OC-01".
func CategoryOf(subcategoryID string) string {
	if idx := strings.LastIndex(subcategoryID, "-"); idx > 0 {
		return subcategoryID[:idx]
	}
	return subcategoryID
}

// FunctionOf returns the parent function of a category or subcategory ID.
func FunctionOf(id string) string {
	if idx := strings.Index(id, "."); idx > 0 {
		return id[:idx]
	}
	return id
}

// Question is one catalog entry served to an assessment session.
type Question struct {
	QuestionID    string `json:"question_id"`
	SubcategoryID string `json:"subcategory_id"`
	Text          string `json:"text"`
}

// Filters narrows a question set. An empty filter selects the full catalog.
type Filters struct {
	Functions []string `json:"functions,omitempty"`
}

// Catalog serves ordered question lists. Implementations must return the
// same order for repeated calls with identical inputs.
type Catalog interface {
	OrderedQuestions(ctx context.Context, assessmentType, orgSize string, filters Filters) ([]Question, error)
}

// FrameworkCatalog is an in-memory catalog built from framework subcategories.
type FrameworkCatalog struct {
	subcategories []Subcategory // sorted by identifier
}

// Subcategory is a single framework control a question assesses.
type Subcategory struct {
	ID            string
	CategoryTitle string
}

// New builds a catalog over the given subcategories. Entries with malformed
// identifiers are rejected so the traversal order is always well defined.
func New(subs []Subcategory) (*FrameworkCatalog, error) {
	sorted := make([]Subcategory, 0, len(subs))
	seen := make(map[string]bool, len(subs))
	for _, sub := range subs {
		if !ValidSubcategoryID(sub.ID) {
			return nil, fmt.Errorf("subcategory identifier must follow XX.YY-NN format: %q", sub.ID)
		}
		if seen[sub.ID] {
			return nil, fmt.Errorf("duplicate subcategory identifier: %q", sub.ID)
		}
		seen[sub.ID] = true
		sorted = append(sorted, sub)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &FrameworkCatalog{subcategories: sorted}, nil
}

// NewBuiltin returns a catalog over the embedded CSF 2.0 framework.
func NewBuiltin() *FrameworkCatalog {
	c, err := New(builtinSubcategories())
	if err != nil {
		// The embedded table is validated by tests; a failure here is a bug.
		panic(err)
	}
	return c
}

// OrderedQuestions returns the question list for an assessment configuration.
// Ordering is lexicographic by subcategory ID, which groups questions by
// function and category and is stable across calls.
//
// assessmentType "quick" keeps only the first control of each category;
// orgSize "small" trims controls numbered above 05 within a category.
func (c *FrameworkCatalog) OrderedQuestions(ctx context.Context, assessmentType, orgSize string, filters Filters) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wantFn := make(map[string]bool, len(filters.Functions))
	for _, raw := range filters.Functions {
		fn, err := ParseFunction(raw)
		if err != nil {
			return nil, err
		}
		wantFn[string(fn)] = true
	}

	quick := strings.EqualFold(assessmentType, "quick")
	small := strings.EqualFold(orgSize, "small")

	var questions []Question
	for _, sub := range c.subcategories {
		if len(wantFn) > 0 && !wantFn[FunctionOf(sub.ID)] {
			continue
		}
		n := controlNumber(sub.ID)
		if quick && n != 1 {
			continue
		}
		if small && n > 5 {
			continue
		}
		questions = append(questions, Question{
			QuestionID:    questionID(sub.ID),
			SubcategoryID: sub.ID,
			Text:          questionText(sub),
		})
	}
	return questions, nil
}

// Size returns the number of subcategories in the full catalog.
func (c *FrameworkCatalog) Size() int {
	return len(c.subcategories)
}

func controlNumber(subcategoryID string) int {
	idx := strings.LastIndex(subcategoryID, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(subcategoryID[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

func questionID(subcategoryID string) string {
	return strings.ToLower(strings.NewReplacer(".", "-").Replace(subcategoryID))
}

func questionText(sub Subcategory) string {
	return fmt.Sprintf("To what extent has your organization implemented %s (%s)?", sub.ID, sub.CategoryTitle)
}
