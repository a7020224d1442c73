package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"gigflow/internal/service"
)

func (s *HTTPServer) handleListGigs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.ListFilter{
		View:   service.ParseView(q.Get("view")),
		City:   q.Get("city"),
		Genre:  q.Get("genre"),
		Query:  q.Get("q"),
		Viewer: viewerID(r),
	}
	if isTruthy(q.Get("mine")) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		f.OwnerID = actor.ID
	}

	gigs, err := s.svc.ListGigs(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": f.View, "gigs": gigs})
}

func (s *HTTPServer) handleCreateGig(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req gigRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := req.gig()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.svc.CreateGig(r.Context(), actor, g); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *HTTPServer) handleGetGig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	g, err := s.svc.GetGig(r.Context(), viewerID(r), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *HTTPServer) handleUpdateGig(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req gigPatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.svc.UpdateGig(r.Context(), actor, id, req.update())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *HTTPServer) handleApply(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req applyRequest
	if !s.decode(w, r, &req) {
		return
	}
	app, err := s.svc.Apply(r.Context(), actor, id, service.ApplyInput{
		CoverLetter: req.CoverLetter,
		ExpectedFee: req.ExpectedFee,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *HTTPServer) handleHire(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Hire(r.Context(), actor, id, req.ApplicationIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleClose(w http.ResponseWriter, r *http.Request) {
	s.gigTransition(w, r, s.svc.CloseGig)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.gigTransition(w, r, s.svc.CancelGig)
}

type transitionFunc func(ctx context.Context, actor service.Actor, id int64) (*service.TransitionResult, error)

func (s *HTTPServer) gigTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := fn(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request) {
	s.gigTransition(w, r, s.svc.RejectApplication)
}

func (s *HTTPServer) handleListApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	apps, err := s.svc.ListApplications(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (s *HTTPServer) handleThreads(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	threads, err := s.svc.ThreadSummaries(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *HTTPServer) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := s.svc.GetSelection(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.svc.SetSelection(r.Context(), actor, id, req.ApplicationIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.ClearSelection(r.Context(), actor, id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleEligibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Eligibility(r.Context(), actor, id, req.ApplicationIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	msgs, err := s.svc.ListMessages(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *HTTPServer) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.svc.PostMessage(r.Context(), actor, id, req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *HTTPServer) handleFunding(w http.ResponseWriter, r *http.Request) {
	var req fundingRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.CheckFunding(req.Budget, req.Fees))
}

func (s *HTTPServer) handleMyApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	groups, err := s.svc.ListMyApplications(r.Context(), actor.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gigs": groups})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	blocks, err := s.svc.MusicianCalendar(r.Context(), id, q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

// handleExportGigs sends the caller's gigs, active and history, as xlsx.
func (s *HTTPServer) handleExportGigs(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	gigs, err := s.svc.ListGigs(r.Context(), service.ListFilter{
		View:    service.ViewAll,
		OwnerID: actor.ID,
		Viewer:  actor.ID,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := writeGigReport(&buf, gigs, s.svc.Location()); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="vagas.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func isTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
