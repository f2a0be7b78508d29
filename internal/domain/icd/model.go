// Package icd provides the ICD-10 reference code search: the Postgres-backed
// reference repository, the search endpoint, and the debounced
// search-as-you-type controller used while manually adding a code.
package icd

// Code is one ICD-10 reference entry. Field casing matches the upstream
// wire shape.
type Code struct {
	Code        string `json:"Code"`
	Description string `json:"Description"`
}

// Display renders the code the way the search input shows a locked
// selection.
func (c Code) Display() string {
	return c.Code + " - " + c.Description
}

// PointEntry is one row of the HIPPS point reference: the points a code
// contributes and whether it counts toward the case-mix total at all.
type PointEntry struct {
	Points      int
	Contributor bool
}

// DiagnosisType tells whether a manually added code targets the primary or
// secondary list.
type DiagnosisType string

const (
	DiagnosisPrimary   DiagnosisType = "primary"
	DiagnosisSecondary DiagnosisType = "secondary"
)
