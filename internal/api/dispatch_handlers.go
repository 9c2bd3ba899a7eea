package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/pkg/httputil"
	"github.com/ignite/dispatch/internal/service/dispatch"
)

// HandleCreateDispatch schedules one object for one recipient.
//
//	POST /dispatches
func (h *Handlers) HandleCreateDispatch(w http.ResponseWriter, r *http.Request) {
	var in dispatch.DispatchInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	rec, err := h.dispatches.Dispatch(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, rec)
}

// HandleDispatchToList schedules one object for every subscribed member.
//
//	POST /lists/{listID}/dispatches
func (h *Handlers) HandleDispatchToList(w http.ResponseWriter, r *http.Request) {
	listID, ok := httputil.ParseID(chi.URLParam(r, "listID"))
	if !ok {
		httputil.BadRequest(w, "invalid list id")
		return
	}
	var in dispatch.ListDispatchInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	in.ListID = listID
	recs, err := h.dispatches.DispatchToList(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, map[string]interface{}{"created": len(recs), "data": recs})
}

// HandleListDispatches lists records filtered by status, manager,
// recipient and object.
//
//	GET /dispatches
func (h *Handlers) HandleListDispatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ParsePagination(r, 50, 500)

	f := dispatch.ListFilter{
		ManagerSlug: q.Get("manager"),
		ContentType: q.Get("content_type"),
		ObjectID:    q.Get("object_id"),
		Limit:       p.Limit,
		Offset:      p.Offset,
	}
	if s := q.Get("status"); s != "" {
		st, err := domain.ParseStatus(s)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		f.Status = st
	}
	if s := q.Get("recipient_id"); s != "" {
		id, ok := httputil.ParseID(s)
		if !ok {
			httputil.BadRequest(w, "invalid recipient_id")
			return
		}
		f.RecipientID = id
	}

	recs, total, err := h.dispatches.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.DispatchRecord{}
	}
	httputil.OK(w, NewPaginatedResponse(recs, p, total))
}

// HandleGetDispatch returns one record.
//
//	GET /dispatches/{id}
func (h *Handlers) HandleGetDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(chi.URLParam(r, "id"))
	if !ok {
		httputil.BadRequest(w, "invalid dispatch id")
		return
	}
	rec, err := h.dispatches.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rec)
}

// HandleCancelDispatch cancels a pending record.
//
//	POST /dispatches/{id}/cancel
func (h *Handlers) HandleCancelDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(chi.URLParam(r, "id"))
	if !ok {
		httputil.BadRequest(w, "invalid dispatch id")
		return
	}
	rec, err := h.dispatches.MarkCancelled(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rec)
}

// HandleCancelForObject cancels every pending record for one object, for
// example after the application deleted it. The content type need not be
// registered any more.
//
//	POST /objects/{contentType}/{objectID}/cancel
func (h *Handlers) HandleCancelForObject(w http.ResponseWriter, r *http.Request) {
	ref := domain.Reference{
		ContentType: chi.URLParam(r, "contentType"),
		ObjectID:    chi.URLParam(r, "objectID"),
	}
	if ref.ContentType == "" || ref.ObjectID == "" {
		httputil.BadRequest(w, "content type and object id are required")
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "object removed"
	}
	n, err := h.dispatches.CancelForObject(r.Context(), ref, reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"cancelled": n})
}

// HandleContentTypes lists registered content types.
//
//	GET /content-types
func (h *Handlers) HandleContentTypes(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string][]string{"content_types": h.dispatches.Registry().RegisteredTypes()})
}
