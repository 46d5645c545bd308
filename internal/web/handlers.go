package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/ctxbridge/internal/capture"
	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/ops"
	"github.com/hpungsan/ctxbridge/internal/synth"
)

// IDsRequest is the body of the multi-clip endpoints.
type IDsRequest struct {
	IDs []string `json:"ids"`
}

// UpdateRequest is the body of PATCH /clips/{id}.
type UpdateRequest struct {
	Content *string `json:"content"`
}

// ExportRequest is the body of POST /export.
type ExportRequest struct {
	Path   string   `json:"path,omitempty"`
	IDs    []string `json:"ids,omitempty"`
	Status string   `json:"status,omitempty"`
}

// JoinRequest is the body of POST /synthesis/join. No ids means all of
// staging; no template means the first one.
type JoinRequest struct {
	IDs        []string `json:"ids,omitempty"`
	TemplateID string   `json:"template_id,omitempty"`
}

// RefineRequest is the body of POST /synthesis/refine. Instruction, when
// set, takes precedence over PromptID.
type RefineRequest struct {
	IDs         []string `json:"ids,omitempty"`
	PromptID    string   `json:"prompt_id,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
}

// DraftRequest is the body of PUT /synthesis/draft.
type DraftRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	items := s.deps.Repo.Clips()
	staging := len(clip.Staging(items))
	renderJSON(w, http.StatusOK, map[string]any{
		"name":            "ctxbridge",
		"version":         s.version,
		"panel_connected": s.deps.Relay.PanelConnected(),
		"staging":         staging,
		"archived":        len(items) - staging,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		renderError(w, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), "offset")
	if err != nil {
		renderError(w, err)
		return
	}

	out, err := s.deps.Repo.List(ops.ListInput{
		Status: q.Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

func queryInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.NewValidation(name + " must be an integer")
	}
	return n, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	it, err := s.deps.Repo.Get(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, it)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	it, err := s.deps.Repo.Get(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, err)
		return
	}
	if err := renderPreview(w, it); err != nil {
		renderError(w, err)
	}
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	if req.Content == nil {
		renderError(w, errors.NewValidation("content is required"))
		return
	}
	it, err := s.deps.Repo.UpdateContent(r.Context(), chi.URLParam(r, "id"), *req.Content)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, ops.Summarize(it))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.deps.Repo.DeleteMany(r.Context(), []string{id})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": n > 0})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeIDs(w, r)
	if !ok {
		return
	}
	n, err := s.deps.Repo.DeleteMany(r.Context(), ids)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Repo.Clear(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeIDs(w, r)
	if !ok {
		return
	}
	n, err := s.deps.Repo.Archive(r.Context(), ids)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]int{"archived": n})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Repo.Restore(r.Context(), id); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"id": id, "status": clip.StatusStaging})
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeIDs(w, r)
	if !ok {
		return
	}
	if err := s.deps.Repo.ReorderStaging(r.Context(), ids); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string][]string{"staging": clip.IDs(s.deps.Repo.Staging())})
}

func (s *Server) decodeIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req IDsRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return nil, false
	}
	if len(req.IDs) == 0 {
		renderError(w, errors.NewValidation("ids is required"))
		return nil, false
	}
	return req.IDs, true
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	out, err := s.deps.Repo.Export(r.Context(), ops.ExportInput{
		Path:   req.Path,
		IDs:    req.IDs,
		Status: req.Status,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// Capture

func (s *Server) handleCaptureSelection(w http.ResponseWriter, r *http.Request) {
	var in capture.SelectionInput
	if err := decodeBody(w, r, &in); err != nil {
		renderError(w, err)
		return
	}
	res, err := s.deps.Producer.CaptureSelection(r.Context(), in)
	renderCapture(w, res, err)
}

func (s *Server) handleCapturePage(w http.ResponseWriter, r *http.Request) {
	var in capture.PageInput
	if err := decodeBody(w, r, &in); err != nil {
		renderError(w, err)
		return
	}
	res, err := s.deps.Producer.CapturePage(r.Context(), in)
	renderCapture(w, res, err)
}

func (s *Server) handleCaptureAdapter(w http.ResponseWriter, r *http.Request) {
	var in capture.Payload
	if err := decodeBody(w, r, &in); err != nil {
		renderError(w, err)
		return
	}
	res, err := s.deps.Producer.CaptureAdapter(r.Context(), in)
	renderCapture(w, res, err)
}

func renderCapture(w http.ResponseWriter, res *capture.Result, err error) {
	if err != nil {
		renderError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	renderJSON(w, status, res)
}

// Synthesis

// stateView is the panel's view of the synthesis session.
type stateView struct {
	State   string       `json:"state"`
	Loading bool         `json:"loading"`
	Draft   *synth.Draft `json:"draft,omitempty"`
	Error   *errorView   `json:"error,omitempty"`
}

func (s *Server) synthesisState(err error) stateView {
	v := stateView{
		State:   s.session.State().String(),
		Loading: s.session.Loading(),
	}
	if d, ok := s.session.Draft(); ok {
		v.Draft = &d
	}
	if err != nil {
		ev := viewError(err)
		v.Error = &ev
	}
	return v
}

// publishState sends the session state to every panel and returns it.
func (s *Server) publishState(err error) stateView {
	v := s.synthesisState(err)
	s.panel.publish(event{Name: eventSynthesis, Data: v})
	return v
}

func (s *Server) handleSynthesisState(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, s.synthesisState(nil))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	_, err := synth.Run(r.Context(), s.session, s.deps.Settings, s.deps.Repo, synth.Request{
		Strategy:   synth.StrategyJoin,
		IDs:        req.IDs,
		TemplateID: req.TemplateID,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, s.publishState(nil))
}

// handleRefine starts AI Refine and answers 202 with the pending state. The
// outcome reaches panels as a synthesis event.
func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req RefineRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	items, err := synth.Select(s.deps.Repo, req.IDs)
	if err != nil {
		renderError(w, err)
		return
	}
	instr, err := synth.ResolveInstruction(r.Context(), s.deps.Settings, req.PromptID, req.Instruction)
	if err != nil {
		renderError(w, err)
		return
	}

	err = s.session.RefineAsync(s.ctx, items, instr, func(_ synth.Draft, err error) {
		if err != nil {
			s.logger.Warn("ai refine failed", "instruction", instr.Name, "error", err)
		}
		s.publishState(err)
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusAccepted, s.publishState(nil))
}

func (s *Server) handleEditDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	if err := s.session.Edit(req.Text); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, s.publishState(nil))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	it, err := s.session.Confirm(r.Context(), s.deps.Repo)
	if err != nil {
		renderError(w, err)
		return
	}
	state := s.publishState(nil)
	renderJSON(w, http.StatusCreated, map[string]any{
		"clip":  it,
		"state": state,
	})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	s.session.Discard()
	renderJSON(w, http.StatusOK, s.publishState(nil))
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.deps.Settings.Templates(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, templates)
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.deps.Settings.Prompts(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, prompts)
}
