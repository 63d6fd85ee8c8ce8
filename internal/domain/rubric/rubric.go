// Package rubric holds the fixed, versioned scoring rubric: the category set,
// per-category maxima, grade breakpoints and hiring recommendations.
package rubric

import (
	"errors"
	"fmt"
)

// Version identifies this rubric. Scores are only comparable within a version.
const Version = "2024.1"

// TotalPoints is the sum every valid rubric must reach.
const TotalPoints = 100

// ErrInvalidRubric is returned by Validate when the maxima do not sum to TotalPoints.
var ErrInvalidRubric = errors.New("invalid rubric")

// Category is a scored rubric dimension.
type Category string

// Categories in declaration order. The order is the tie-break for rankings and flags.
const (
	FileSeparation     Category = "fileSeparation"
	JQueryAjax         Category = "jqueryAjax"
	Bootstrap          Category = "bootstrap"
	PreparedStatements Category = "preparedStatements"
	MySQL              Category = "mysql"
	MongoDB            Category = "mongodb"
	Redis              Category = "redis"
	LocalStorage       Category = "localStorage"
	NamingConventions  Category = "namingConventions"
	Modularity         Category = "modularity"
	ErrorHandling      Category = "errorHandling"
	Security           Category = "security"
	FolderStructure    Category = "folderStructure"
	Deployment         Category = "deployment"
	BonusFeatures      Category = "bonusFeatures"
)

// Group clusters categories for reporting.
type Group string

// Groups.
const (
	GroupCritical  Group = "critical"
	GroupDatabase  Group = "database"
	GroupQuality   Group = "quality"
	GroupStructure Group = "structure"
)

type entry struct {
	category Category
	group    Group
	max      int
	label    string
}

var table = []entry{
	{FileSeparation, GroupCritical, 10, "File separation"},
	{JQueryAjax, GroupCritical, 10, "jQuery AJAX usage"},
	{Bootstrap, GroupCritical, 10, "Bootstrap styling"},
	{PreparedStatements, GroupCritical, 10, "Prepared statements"},
	{MySQL, GroupDatabase, 8, "MySQL usage"},
	{MongoDB, GroupDatabase, 8, "MongoDB usage"},
	{Redis, GroupDatabase, 5, "Redis usage"},
	{LocalStorage, GroupDatabase, 4, "localStorage sessions"},
	{NamingConventions, GroupQuality, 5, "Naming conventions"},
	{Modularity, GroupQuality, 5, "Modularity"},
	{ErrorHandling, GroupQuality, 5, "Error handling"},
	{Security, GroupQuality, 5, "Security practices"},
	{FolderStructure, GroupStructure, 10, "Folder structure"},
	{Deployment, GroupStructure, 3, "Deployment"},
	{BonusFeatures, GroupStructure, 2, "Bonus features"},
}

var index = func() map[Category]int {
	m := make(map[Category]int, len(table))
	for i, e := range table {
		m[e.category] = i
	}
	return m
}()

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, len(table))
	for i, e := range table {
		out[i] = e.category
	}
	return out
}

// QualityCategories returns the categories scored by code review.
func QualityCategories() []Category {
	return []Category{NamingConventions, Modularity, ErrorHandling, Security}
}

// Known reports whether c is part of the rubric.
func Known(c Category) bool {
	_, ok := index[c]
	return ok
}

// Order returns the declaration position of c, or -1 when unknown.
func Order(c Category) int {
	if i, ok := index[c]; ok {
		return i
	}
	return -1
}

// MaxFor returns the maximum points for c, or 0 for unknown categories.
func MaxFor(c Category) int {
	if i, ok := index[c]; ok {
		return table[i].max
	}
	return 0
}

// GroupOf returns the group c belongs to.
func GroupOf(c Category) Group {
	if i, ok := index[c]; ok {
		return table[i].group
	}
	return ""
}

// Label returns a human-readable name for c.
func Label(c Category) string {
	if i, ok := index[c]; ok {
		return table[i].label
	}
	return string(c)
}

// Validate checks that the maxima sum to TotalPoints.
func Validate() error {
	return validate(table)
}

func validate(entries []entry) error {
	sum := 0
	for _, e := range entries {
		if e.max < 0 {
			return fmt.Errorf("%w: %s has negative maximum", ErrInvalidRubric, e.category)
		}
		sum += e.max
	}
	if sum != TotalPoints {
		return fmt.Errorf("%w: maxima sum to %d, want %d", ErrInvalidRubric, sum, TotalPoints)
	}
	return nil
}

// Overrides carries per-run qualitative context. It never changes the numbers.
type Overrides struct {
	RulesText     string `json:"rules_text,omitempty"`
	StructureText string `json:"structure_text,omitempty"`
}

// Weights is the effective rubric for one run.
type Weights struct {
	Version   string
	Max       map[Category]int
	Overrides Overrides
}

// WeightsFor returns the fixed maxima paired with the run's qualitative overrides.
func WeightsFor(o Overrides) Weights {
	m := make(map[Category]int, len(table))
	for _, e := range table {
		m[e.category] = e.max
	}
	return Weights{Version: Version, Max: m, Overrides: o}
}
