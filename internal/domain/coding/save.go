package coding

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrSaveInFlight is returned when a save is requested while a previous one
// has not resolved. The trigger is refused rather than queued.
var ErrSaveInFlight = errors.New("a save is already in progress")

// SaveComment is one serialized comment row.
type SaveComment struct {
	Comment   string `json:"comment"`
	User      string `json:"user"`
	Timestamp string `json:"timestamp"`
}

// SaveCode is one serialized suggestion in the backend's save schema.
// Rank is 1-based, with -1 marking rejected codes; AcceptCode is the
// tri-state accepted/rejected/undecided.
type SaveCode struct {
	CodeID             string              `json:"code_id"`
	DiagnosisCode      string              `json:"diagnosis_code"`
	DiseaseDescription string              `json:"disease_description"`
	Rank               int                 `json:"rank"`
	AcceptCode         *bool               `json:"accept_code"`
	CodeType           string              `json:"code_type"`
	ConsideredExcluded bool                `json:"considered_but_excluded"`
	ReasonForExclusion string              `json:"reason_for_exclusion"`
	ReasonForCoding    string              `json:"reason_for_coding"`
	ActiveDisease      bool                `json:"active_disease_asof_1june2025"`
	ActiveDiseaseSent  string              `json:"supporting_sentence_for_active_disease"`
	ActiveMgmt         bool                `json:"active_management_asof_1june2025"`
	ActiveMgmtSent     string              `json:"supporting_sentence_for_active_management"`
	SupportingInfo     []APISupportingInfo `json:"supporting_info"`
	UpdatedAt          string              `json:"updated_at,omitempty"`
	LastReorderedBy    string              `json:"last_reordered_by,omitempty"`
	Comments           []SaveComment       `json:"comments"`
	Deleted            bool                `json:"deleted"`
	AddedBy            string              `json:"added_by,omitempty"`
	CreatedAt          string              `json:"created_at,omitempty"`
}

// SaveRequest is the atomic PATCH body for coding-results.
type SaveRequest struct {
	PrimaryCodes   []SaveCode `json:"primary_codes"`
	SecondaryCodes []SaveCode `json:"secondary_codes"`
}

// Saver issues the atomic PATCH against the upstream backend.
type Saver interface {
	SaveCodingResults(ctx context.Context, docID string, req *SaveRequest) error
}

func boolPtr(v bool) *bool { return &v }

func serializeSentence(s SupportingSentence) APISupportingInfo {
	info := APISupportingInfo{
		Sentence:     s.Text,
		DocumentName: s.Document,
		PageNumber:   strconv.Itoa(s.Page),
	}
	if s.Box != nil {
		info.BBox = s.Box.ToPolygon()
	} else {
		info.BBox = [][]float64{}
	}
	return info
}


// serializeLocked maps one suggestion to the save schema. Callers hold the
// engine lock.
func (e *Engine) serializeLocked(cs CodeSuggestion) SaveCode {
	var accept *bool
	switch {
	case e.selected[cs.ID] || (cs.IsManuallyAdded && !e.rejected[cs.ID]):
		accept = boolPtr(true)
	case e.rejected[cs.ID]:
		accept = boolPtr(false)
	}

	rank := cs.Order + 1
	rejected := e.rejected[cs.ID]
	if rejected {
		rank = -1
	}

	codeType := "AI_MODEL"
	addedBy := ""
	if cs.IsManuallyAdded {
		codeType = "HUMAN"
		addedBy = "coder"
	}

	excluded := cs.ConsideredButExcluded || rejected
	exclusionReason := cs.ReasonForExclusion
	if exclusionReason == "" && rejected {
		exclusionReason = "Rejected by coder"
	}

	activeDiseaseSent := cs.ActiveDiseaseSentence
	if activeDiseaseSent == "" && len(cs.Sentences) > 0 {
		activeDiseaseSent = cs.Sentences[0].Text
	}
	activeMgmtSent := cs.ActiveMgmtSentence
	if activeMgmtSent == "" {
		activeMgmtSent = cs.AIReasoning
	}

	infos := make([]APISupportingInfo, 0, len(cs.Sentences))
	for _, s := range cs.Sentences {
		infos = append(infos, serializeSentence(s))
	}

	comments := make([]SaveComment, 0, len(e.comments[cs.ID]))
	for _, c := range e.comments[cs.ID] {
		comments = append(comments, SaveComment{Comment: c.Text, User: c.User, Timestamp: c.Timestamp})
	}

	codeID := cs.APICodeID
	if codeID == "" {
		codeID = cs.ID
	}

	return SaveCode{
		CodeID:             codeID,
		DiagnosisCode:      cs.Code,
		DiseaseDescription: cs.Description,
		Rank:               rank,
		AcceptCode:         accept,
		CodeType:           codeType,
		ConsideredExcluded: excluded,
		ReasonForExclusion: exclusionReason,
		ReasonForCoding:    cs.AIReasoning,
		ActiveDisease:      cs.ActiveDisease,
		ActiveDiseaseSent:  activeDiseaseSent,
		ActiveMgmt:         cs.ActiveMgmt,
		ActiveMgmtSent:     activeMgmtSent,
		SupportingInfo:     infos,
		UpdatedAt:          cs.UpdatedAt,
		LastReorderedBy:    cs.LastReorderedBy,
		Comments:           comments,
		AddedBy:            addedBy,
		CreatedAt:          cs.AddedTimestamp,
	}
}

// BuildSaveRequest serializes the current lists and comments into the
// backend schema without mutating any state.
func (e *Engine) BuildSaveRequest() *SaveRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	req := &SaveRequest{
		PrimaryCodes:   make([]SaveCode, 0, len(e.primary)),
		SecondaryCodes: make([]SaveCode, 0, len(e.secondary)),
	}
	for _, cs := range e.primary {
		req.PrimaryCodes = append(req.PrimaryCodes, e.serializeLocked(cs))
	}
	for _, cs := range e.secondary {
		req.SecondaryCodes = append(req.SecondaryCodes, e.serializeLocked(cs))
	}
	return req
}

// Save serializes the review state and PATCHes it atomically. A failure
// records the error and leaves the in-memory edits untouched; a concurrent
// save attempt is refused with ErrSaveInFlight.
func (e *Engine) Save(ctx context.Context, saver Saver, docID string) error {
	e.mu.Lock()
	if e.saving {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	e.saving = true
	e.saveErr = ""
	e.mu.Unlock()

	req := e.BuildSaveRequest()
	err := saver.SaveCodingResults(ctx, docID, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.saving = false
	if err != nil {
		e.saveErr = err.Error()
		return err
	}
	e.lastSaved = e.clk.Now()
	return nil
}

// LastSaved reports the timestamp of the last successful save, if any.
func (e *Engine) LastSaved() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSaved, !e.lastSaved.IsZero()
}
