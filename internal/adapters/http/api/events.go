package api

import (
	"encoding/json"
	"net/http"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

// EventsHandler handles the event command and query routes.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleCreate handles POST /events.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_event"
	var req createEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	d, err := req.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	rec, err := h.deps.CreateEvent(r.Context(), req.Kind, d)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(rec))
}

// HandleList handles GET /events.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_events"
	recs, err := h.deps.ListEvents(r.Context())
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	out := make([]eventResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toEventResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /events/{id}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	v, err := h.deps.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toViewResponse(v))
}

// HandleActivate handles POST /events/{id}/activate.
func (h *EventsHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	const op = "api.activate_event"
	rec, err := h.deps.ActivateEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(rec))
}

// HandleEnroll handles POST /events/{id}/participants.
func (h *EventsHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	const op = "api.enroll"
	var req enrollRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := h.deps.EnrollParticipant(r.Context(), r.PathValue("id"), req.PlayerID, req.DisplayName)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, toParticipantResponse(p))
}

// HandleEnd handles POST /events/{id}/end. The finish pass runs
// asynchronously; poll the result route for the outcome.
func (h *EventsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	const op = "api.end_event"
	rec, err := h.deps.EndEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, toEventResponse(rec))
}

// HandleAbandon handles DELETE /events/{id}.
func (h *EventsHandler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	const op = "api.abandon_event"
	if err := h.deps.AbandonEvent(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResult handles GET /events/{id}/result.
func (h *EventsHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	const op = "api.event_result"
	res, err := h.deps.EventResult(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}
