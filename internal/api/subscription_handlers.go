package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/dispatch/internal/pkg/httputil"
	"github.com/ignite/dispatch/internal/service/recipient"
)

// HandleSubscribe creates or updates a recipient.
//
//	POST /subscribe
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var in recipient.SubscribeInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	rec, err := h.recipients.Subscribe(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rec)
}

type unsubscribeResponse struct {
	DispatchID int64 `json:"dispatch_id"`
	Subscribed bool  `json:"subscribed"`
}

func (h *Handlers) unsubscribeParams(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	id, ok := httputil.ParseID(chi.URLParam(r, "dispatchID"))
	if !ok {
		httputil.NotFound(w, "unsubscribe link not found")
		return 0, "", false
	}
	return id, chi.URLParam(r, "token"), true
}

// HandleUnsubscribeCheck validates an unsubscribe link without acting on
// it, so link scanners that prefetch URLs don't unsubscribe anyone.
//
//	GET /unsubscribe/{dispatchID}/{token}
func (h *Handlers) HandleUnsubscribeCheck(w http.ResponseWriter, r *http.Request) {
	id, tok, ok := h.unsubscribeParams(w, r)
	if !ok {
		return
	}
	rec, err := h.recipients.VerifyToken(r.Context(), id, tok)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, unsubscribeResponse{DispatchID: id, Subscribed: rec.IsSubscribed})
}

// HandleUnsubscribe unsubscribes the recipient of the link. Also serves
// RFC 8058 one-click requests.
//
//	POST /unsubscribe/{dispatchID}/{token}
func (h *Handlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	id, tok, ok := h.unsubscribeParams(w, r)
	if !ok {
		return
	}
	rec, err := h.recipients.UnsubscribeWithToken(r.Context(), id, tok)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, unsubscribeResponse{DispatchID: id, Subscribed: rec.IsSubscribed})
}

// HandleCreateList creates a mailing list.
//
//	POST /lists
func (h *Handlers) HandleCreateList(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if !httputil.Decode(w, r, &in) {
		return
	}
	l, err := h.recipients.CreateList(r.Context(), in.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, l)
}

// HandleAddMember adds a recipient to a list.
//
//	POST /lists/{listID}/members
func (h *Handlers) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	listID, ok := httputil.ParseID(chi.URLParam(r, "listID"))
	if !ok {
		httputil.BadRequest(w, "invalid list id")
		return
	}
	var in struct {
		RecipientID int64 `json:"recipient_id"`
	}
	if !httputil.Decode(w, r, &in) {
		return
	}
	if err := h.recipients.AddToList(r.Context(), listID, in.RecipientID); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]int64{"list_id": listID, "recipient_id": in.RecipientID})
}
