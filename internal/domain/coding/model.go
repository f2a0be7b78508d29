// Package coding owns the coding-decision state machine: the primary and
// secondary suggestion lists, the accept/reject/expand id sets, comments,
// the single-active-primary invariant with its conflict-resolution flows,
// derived statistics, HIPPS computation, and the save operation.
package coding

import (
	"fmt"
	"sort"
	"time"

	"github.com/icdreview/icdreview/internal/geometry"
)

// Status is a suggestion's review decision.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// SupportingSentence is one piece of textual evidence behind a suggestion.
type SupportingSentence struct {
	ID       string                `json:"id"`
	Text     string                `json:"text"`
	Document string                `json:"document"`
	Page     int                   `json:"page"`
	Box      *geometry.BoundingBox `json:"box,omitempty"`
}

// Comment is one reviewer note on a suggestion. Storage order is insertion
// order; display order is most-recent-first.
type Comment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	User      string `json:"user"`
	Timestamp string `json:"timestamp"`
}

// CodeSuggestion is the central entity of the review: one ICD code proposed
// by the model or added by the reviewer.
type CodeSuggestion struct {
	ID                 string               `json:"id"`
	APICodeID          string               `json:"api_code_id,omitempty"`
	Code               string               `json:"code"`
	Description        string               `json:"description"`
	Status             Status               `json:"status"`
	IsManuallyAdded    bool                 `json:"is_manually_added"`
	Order              int                  `json:"order"`
	HIPPSPoints        int                  `json:"hipps_points"`
	IsHIPPSContributor bool                 `json:"is_hipps_contributor"`
	AIReasoning        string               `json:"ai_reasoning"`
	Sentences          []SupportingSentence `json:"supporting_sentences"`

	AddedTimestamp         string `json:"added_timestamp,omitempty"`
	UpdatedAt              string `json:"updated_at,omitempty"`
	LastReorderedBy        string `json:"last_reordered_by,omitempty"`
	ConsideredButExcluded  bool   `json:"considered_but_excluded"`
	ReasonForExclusion     string `json:"reason_for_exclusion,omitempty"`
	ActiveDisease          bool   `json:"active_disease"`
	ActiveDiseaseSentence  string `json:"active_disease_sentence,omitempty"`
	ActiveMgmt             bool   `json:"active_management"`
	ActiveMgmtSentence     string `json:"active_management_sentence,omitempty"`
}

// =========== Upstream wire shapes ===========

// APISupportingInfo is the upstream evidence row; bbox is the 8-number
// corner polygon, possibly nested one level.
type APISupportingInfo struct {
	Sentence     string      `json:"supporting_sentence_in_document"`
	DocumentName string      `json:"document_name"`
	SectionName  string      `json:"section_name"`
	PageNumber   string      `json:"page_number"`
	BBox         [][]float64 `json:"bbox"`
}

// APIComment is the upstream comment row.
type APIComment struct {
	CommentID string `json:"comment_id"`
	Comment   string `json:"comment"`
	User      string `json:"user"`
	Timestamp string `json:"timestamp"`
}

// APICodeSuggestion is one upstream suggestion row from coding-results.
type APICodeSuggestion struct {
	CodeID             string              `json:"code_id"`
	Rank               int                 `json:"rank"`
	DiagnosisCode      string              `json:"diagnosis_code"`
	DiseaseDescription string              `json:"disease_description"`
	AcceptCode         *bool               `json:"accept_code"`
	CodeType           string              `json:"code_type"`
	ReasonForCoding    string              `json:"reason_for_coding"`
	SupportingInfo     []APISupportingInfo `json:"supporting_info"`
	Comments           []APIComment        `json:"comments"`
	Deleted            bool                `json:"deleted"`
	CreatedAt          string              `json:"created_at"`
	UpdatedAt          string              `json:"updated_at"`
	LastReorderedBy    string              `json:"last_reordered_by"`
	ConsideredExcluded bool                `json:"considered_but_excluded"`
	ReasonForExclusion string              `json:"reason_for_exclusion"`
	ActiveDisease      *bool               `json:"active_disease_asof_1june2025"`
	ActiveDiseaseSent  string              `json:"supporting_sentence_for_active_disease"`
	ActiveMgmt         *bool               `json:"active_management_asof_1june2025"`
	ActiveMgmtSent     string              `json:"supporting_sentence_for_active_management"`
}

// ReviewStats is the upstream review progress block, passed through as-is.
type ReviewStats struct {
	TotalCodes    int `json:"total_codes"`
	ReviewedCodes int `json:"reviewed_codes"`
}

// ResultsResponse is the upstream coding-results payload.
type ResultsResponse struct {
	Results struct {
		PrimaryCodes   []APICodeSuggestion `json:"primary_codes"`
		SecondaryCodes []APICodeSuggestion `json:"secondary_codes"`
	} `json:"results"`
	ReviewStats *ReviewStats `json:"review_stats"`
	EpisodeID   string       `json:"episode_id"`
}

// PointsFunc supplies HIPPS points for an ICD code from the reference data.
// Codes without an entry report zero points and do not contribute.
type PointsFunc func(code string) (points int, contributor bool)

func statusFromAcceptCode(accept *bool) Status {
	switch {
	case accept == nil:
		return StatusPending
	case *accept:
		return StatusAccepted
	default:
		return StatusRejected
	}
}

// flattenPolygon joins a possibly nested bbox into the flat 8-number form
// FromPolygon expects.
func flattenPolygon(bbox [][]float64) []float64 {
	var flat []float64
	for _, part := range bbox {
		flat = append(flat, part...)
	}
	return flat
}

func transformSentences(infos []APISupportingInfo, codeID string) []SupportingSentence {
	sentences := make([]SupportingSentence, 0, len(infos))
	for i, info := range infos {
		s := SupportingSentence{
			ID:       fmt.Sprintf("%s-%d", codeID, i),
			Text:     info.Sentence,
			Document: info.DocumentName,
			Page:     parsePage(info.PageNumber),
		}
		if len(info.BBox) > 0 {
			box := geometry.FromPolygon(flattenPolygon(info.BBox))
			s.Box = &box
		}
		sentences = append(sentences, s)
	}
	return sentences
}

func parsePage(raw string) int {
	var n int
	_, err := fmt.Sscanf(raw, "%d", &n)
	if err != nil {
		return 1
	}
	return n
}

// FromAPISuggestion converts an upstream row to the review entity. Missing
// code ids are synthesized from the code, rank and list so the entity stays
// addressable.
func FromAPISuggestion(api APICodeSuggestion, primary bool, points PointsFunc) CodeSuggestion {
	id := api.CodeID
	if id == "" {
		list := "secondary"
		if primary {
			list = "primary"
		}
		id = fmt.Sprintf("%s-%d-%s", api.DiagnosisCode, api.Rank, list)
	}

	var pts int
	var contributes bool
	if points != nil {
		pts, contributes = points(api.DiagnosisCode)
	}

	return CodeSuggestion{
		ID:                 id,
		APICodeID:          api.CodeID,
		Code:               api.DiagnosisCode,
		Description:        api.DiseaseDescription,
		Status:             statusFromAcceptCode(api.AcceptCode),
		IsManuallyAdded:    api.CodeType == "HUMAN",
		Order:              api.Rank - 1,
		HIPPSPoints:        pts,
		IsHIPPSContributor: contributes,
		AIReasoning:        api.ReasonForCoding,
		Sentences:          transformSentences(api.SupportingInfo, id),

		AddedTimestamp:        api.CreatedAt,
		UpdatedAt:             api.UpdatedAt,
		LastReorderedBy:       api.LastReorderedBy,
		ConsideredButExcluded: api.ConsideredExcluded,
		ReasonForExclusion:    api.ReasonForExclusion,
		ActiveDisease:         api.ActiveDisease == nil || *api.ActiveDisease,
		ActiveDiseaseSentence: api.ActiveDiseaseSent,
		ActiveMgmt:            api.ActiveMgmt == nil || *api.ActiveMgmt,
		ActiveMgmtSentence:    api.ActiveMgmtSent,
	}
}

func transformComments(apiComments []APIComment) []Comment {
	comments := make([]Comment, 0, len(apiComments))
	for i, ac := range apiComments {
		id := ac.CommentID
		if id == "" {
			id = fmt.Sprintf("comment-%d", i)
		}
		comments = append(comments, Comment{ID: id, Text: ac.Comment, User: ac.User, Timestamp: ac.Timestamp})
	}
	return comments
}

// FromResultsResponse transforms the upstream payload into ordered
// suggestion lists plus the per-code comment buckets. Deleted rows are
// dropped; each surviving list is sorted by order.
func FromResultsResponse(resp *ResultsResponse, points PointsFunc) (primary, secondary []CodeSuggestion, comments map[string][]Comment) {
	comments = make(map[string][]Comment)

	build := func(rows []APICodeSuggestion, isPrimary bool) []CodeSuggestion {
		out := make([]CodeSuggestion, 0, len(rows))
		for _, row := range rows {
			if row.Deleted {
				continue
			}
			cs := FromAPISuggestion(row, isPrimary, points)
			if len(row.Comments) > 0 {
				comments[cs.ID] = transformComments(row.Comments)
			}
			out = append(out, cs)
		}
		sortByOrder(out)
		return out
	}

	primary = build(resp.Results.PrimaryCodes, true)
	secondary = build(resp.Results.SecondaryCodes, false)
	return primary, secondary, comments
}

// DisplayComments returns a code's comments most-recent-first without
// mutating the stored insertion order. Timestamps are ISO-8601, so a
// lexical comparison orders them chronologically.
func DisplayComments(stored []Comment) []Comment {
	out := make([]Comment, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// Timestamp format used for manual-add provenance fields.
func nowStamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }
