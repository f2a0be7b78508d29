package session

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/icdreview/icdreview/internal/domain/coding"
	"github.com/icdreview/icdreview/internal/domain/icd"
	"github.com/icdreview/icdreview/internal/domain/viewer"
	"github.com/icdreview/icdreview/internal/platform/auth"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sessions", h.Create)
	api.GET("/sessions/:id", h.Get)
	api.DELETE("/sessions/:id", h.Close)

	api.POST("/sessions/:id/codes", h.AddCode)
	api.POST("/sessions/:id/codes/reorder", h.Reorder)
	api.DELETE("/sessions/:id/codes/:codeID", h.RemoveCode)
	api.POST("/sessions/:id/codes/:codeID/accept", h.codeAction("accept"))
	api.POST("/sessions/:id/codes/:codeID/reject", h.codeAction("reject"))
	api.POST("/sessions/:id/codes/:codeID/undo-accept", h.codeAction("undo-accept"))
	api.POST("/sessions/:id/codes/:codeID/undo-reject", h.codeAction("undo-reject"))
	api.POST("/sessions/:id/codes/:codeID/promote", h.codeAction("promote"))
	api.POST("/sessions/:id/codes/:codeID/demote", h.codeAction("demote"))
	api.POST("/sessions/:id/codes/:codeID/comments", h.AddComment)
	api.POST("/sessions/:id/conflict/:resolution", h.ResolveConflict)
	api.POST("/sessions/:id/save", h.Save)

	api.GET("/sessions/:id/viewer", h.ViewerState)
	api.POST("/sessions/:id/viewer/navigate", h.Navigate)
	api.POST("/sessions/:id/viewer/evidence", h.Evidence)
	api.POST("/sessions/:id/viewer/scroll", h.Scroll)
	api.POST("/sessions/:id/viewer/selection", h.Selection)

	api.POST("/sessions/:id/icd/term", h.ICDTerm)
	api.POST("/sessions/:id/icd/select", h.ICDSelect)
	api.POST("/sessions/:id/icd/start", h.ICDStart)
	api.POST("/sessions/:id/icd/reason", h.ICDReason)

	api.POST("/sessions/:id/pdfsearch", h.PDFSearch)
	api.POST("/sessions/:id/pdfsearch/next", h.PDFNext)
	api.POST("/sessions/:id/pdfsearch/prev", h.PDFPrev)
	api.DELETE("/sessions/:id/pdfsearch", h.PDFClear)
}

func (h *Handler) session(c echo.Context) (*Session, error) {
	s, err := h.mgr.Get(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return s, nil
}

// =========== Lifecycle ===========

type createRequest struct {
	DocID string `json:"doc_id"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DocID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doc_id is required")
	}

	s, err := h.mgr.Create(c.Request().Context(), req.DocID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusCreated, s.State())
}

func (h *Handler) Get(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.State())
}

func (h *Handler) Close(c echo.Context) error {
	if err := h.mgr.Close(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// =========== Coding decisions ===========

func (h *Handler) codeAction(action string) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := h.session(c)
		if err != nil {
			return err
		}
		id := c.Param("codeID")
		switch action {
		case "accept":
			s.Accept(id)
		case "reject":
			s.Reject(id)
		case "undo-accept":
			s.UndoAccept(id)
		case "undo-reject":
			s.UndoReject(id)
		case "promote":
			s.Promote(id)
		case "demote":
			s.Demote(id)
		}
		return c.JSON(http.StatusOK, s.State())
	}
}

func (h *Handler) AddCode(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	id, err := s.SubmitManualCode()
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"code_id": id, "state": s.State()})
}

func (h *Handler) RemoveCode(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if err := s.RemoveCode(c.Param("codeID")); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, s.State())
}

type reorderRequest struct {
	ActiveID string `json:"active_id"`
	OverID   string `json:"over_id"`
}

func (h *Handler) Reorder(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req reorderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ActiveID == "" || req.OverID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "active_id and over_id are required")
	}
	s.Reorder(req.ActiveID, req.OverID)
	return c.JSON(http.StatusOK, s.State())
}

type commentRequest struct {
	Text string `json:"text"`
}

func (h *Handler) AddComment(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req commentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	user := auth.UserNameFromContext(c.Request().Context())
	if user == "" {
		user = "coder"
	}
	comment := s.AddCodeComment(c.Param("codeID"), req.Text, user)
	return c.JSON(http.StatusCreated, comment)
}

func (h *Handler) ResolveConflict(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	switch c.Param("resolution") {
	case "demote":
		s.ResolveConflictDemote()
	case "reject":
		s.ResolveConflictReject()
	case "accept":
		s.ResolveConflictAccept()
	case "cancel":
		s.CancelConflict()
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown resolution")
	}
	return c.JSON(http.StatusOK, s.State())
}

func (h *Handler) Save(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if err := s.Save(c.Request().Context()); err != nil {
		if errors.Is(err, coding.ErrSaveInFlight) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, s.State())
}

// =========== Viewer ===========

func (h *Handler) ViewerState(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.ViewerState())
}

type navigateRequest struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
}

func (h *Handler) Navigate(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req navigateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s.Navigate(req.Document, req.Page)
	return c.JSON(http.StatusOK, s.ViewerState())
}

type evidenceRequest struct {
	CodeID     string `json:"code_id"`
	SentenceID string `json:"sentence_id"`
	Clear      bool   `json:"clear"`
}

func (h *Handler) Evidence(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req evidenceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Clear {
		s.ClearHighlights()
		return c.JSON(http.StatusOK, s.ViewerState())
	}
	if err := s.ShowEvidence(req.CodeID, req.SentenceID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, s.ViewerState())
}

type scrollRequest struct {
	Kind   string  `json:"kind"` // wheel, key-down, key-up, viewport
	DeltaX float64 `json:"delta_x"`
	DeltaY float64 `json:"delta_y"`
	Key    string  `json:"key"`
	Shift  bool    `json:"shift"`
	Ctrl   bool    `json:"ctrl"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (h *Handler) Scroll(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req scrollRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	switch req.Kind {
	case "wheel":
		s.Wheel(req.DeltaX, req.DeltaY)
	case "key-down":
		s.KeyDown(req.Key, viewer.Modifiers{Shift: req.Shift, Ctrl: req.Ctrl})
	case "key-up":
		s.KeyUp(req.Key)
	case "viewport":
		s.SetViewport(req.Width, req.Height)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown scroll kind")
	}
	return c.JSON(http.StatusOK, s.ViewerState())
}

type selectionRequest struct {
	Phase       string  `json:"phase"` // begin, update, leave, end
	Page        int     `json:"page"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	ImageWidth  float64 `json:"image_width"`
	ImageHeight float64 `json:"image_height"`
}

func (h *Handler) Selection(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req selectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	switch req.Phase {
	case "begin":
		s.BeginSelection(req.Page, req.X, req.Y)
	case "update":
		s.UpdateSelection(req.X, req.Y)
	case "leave":
		s.MouseLeave()
	case "end":
		s.EndSelection(req.ImageWidth, req.ImageHeight)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown selection phase")
	}
	return c.JSON(http.StatusOK, s.State())
}

// =========== Manual-add workflow ===========

type icdTermRequest struct {
	Term string `json:"term"`
}

func (h *Handler) ICDTerm(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req icdTermRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s.SetICDSearchTerm(req.Term)
	return c.JSON(http.StatusOK, s.State().ICD)
}

type icdSelectRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (h *Handler) ICDSelect(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req icdSelectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s.SelectICDCode(icd.Code{Code: req.Code, Description: req.Description})
	return c.JSON(http.StatusOK, s.State().ICD)
}

type icdStartRequest struct {
	DiagnosisType string `json:"diagnosis_type"` // primary or secondary
	Cancel        bool   `json:"cancel"`
}

func (h *Handler) ICDStart(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req icdStartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Cancel {
		s.CancelAddingCode()
		return c.JSON(http.StatusOK, s.State().ICD)
	}
	typ := icd.DiagnosisSecondary
	if req.DiagnosisType == string(icd.DiagnosisPrimary) {
		typ = icd.DiagnosisPrimary
	}
	if !s.StartAddingCode(typ) {
		return echo.NewHTTPError(http.StatusConflict, "an active primary code already exists")
	}
	return c.JSON(http.StatusOK, s.State().ICD)
}

type icdReasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) ICDReason(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req icdReasonRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s.SetCodingReason(req.Reason)
	return c.JSON(http.StatusOK, s.State().ICD)
}

// =========== PDF search ===========

type pdfSearchRequest struct {
	Term string `json:"term"`
}

func (h *Handler) PDFSearch(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req pdfSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.SearchPDF(c.Request().Context(), req.Term); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, s.State().PDFSearch)
}

func (h *Handler) PDFNext(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.NextMatch()
	return c.JSON(http.StatusOK, s.State().PDFSearch)
}

func (h *Handler) PDFPrev(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.PrevMatch()
	return c.JSON(http.StatusOK, s.State().PDFSearch)
}

func (h *Handler) PDFClear(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.ClearPDFSearch()
	return c.JSON(http.StatusOK, s.State().PDFSearch)
}
