package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dispatch/internal/content"
	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/service/dispatch"
	"github.com/ignite/dispatch/internal/service/recipient"
)

type fakeRecipients struct {
	recipient    domain.Recipient
	goodToken    string
	unsubscribed int
	members      map[int64][]int64
}

func (f *fakeRecipients) Subscribe(_ context.Context, in recipient.SubscribeInput) (*domain.Recipient, error) {
	if !recipient.ValidEmail(in.Email) {
		return nil, recipient.ErrInvalidEmail
	}
	if len(in.FirstName) > recipient.MaxNameLength {
		return nil, recipient.ErrNameTooLong
	}
	r := f.recipient
	r.Email = in.Email
	return &r, nil
}

func (f *fakeRecipients) VerifyToken(_ context.Context, dispatchID int64, tok string) (*domain.Recipient, error) {
	if dispatchID != 1 {
		return nil, dispatch.ErrNotFound
	}
	if tok != f.goodToken {
		return nil, recipient.ErrInvalidToken
	}
	r := f.recipient
	return &r, nil
}

func (f *fakeRecipients) UnsubscribeWithToken(ctx context.Context, dispatchID int64, tok string) (*domain.Recipient, error) {
	r, err := f.VerifyToken(ctx, dispatchID, tok)
	if err != nil {
		return nil, err
	}
	f.unsubscribed++
	r.IsSubscribed = false
	return r, nil
}

func (f *fakeRecipients) CreateList(_ context.Context, name string) (*domain.MailingList, error) {
	if name == "" {
		return nil, recipient.ErrInvalidName
	}
	return &domain.MailingList{ID: 3, Name: name}, nil
}

func (f *fakeRecipients) AddToList(_ context.Context, listID, recipientID int64) error {
	if listID != 3 {
		return recipient.ErrListNotFound
	}
	if f.members == nil {
		f.members = map[int64][]int64{}
	}
	f.members[listID] = append(f.members[listID], recipientID)
	return nil
}

type fakeDispatches struct {
	registry *content.Registry
	records  map[int64]*domain.DispatchRecord
	lastList dispatch.ListFilter
	cancels  []domain.Reference
	nextID   int64
}

func (f *fakeDispatches) Dispatch(_ context.Context, in dispatch.DispatchInput) (*domain.DispatchRecord, error) {
	ref, err := f.registry.Encode(in.ContentType, in.ObjectID)
	if err != nil {
		return nil, err
	}
	if in.RecipientID <= 0 {
		return nil, dispatch.ErrInvalidRecipient
	}
	f.nextID++
	rec := &domain.DispatchRecord{ID: f.nextID, Ref: ref, RecipientID: in.RecipientID, Status: domain.StatusPending, ManagerSlug: dispatch.DefaultManager}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeDispatches) DispatchToList(_ context.Context, in dispatch.ListDispatchInput) ([]*domain.DispatchRecord, error) {
	if in.ListID != 3 {
		return nil, recipient.ErrListNotFound
	}
	ref, err := f.registry.Encode(in.ContentType, in.ObjectID)
	if err != nil {
		return nil, err
	}
	return []*domain.DispatchRecord{
		{ID: 10, Ref: ref, RecipientID: 1, Status: domain.StatusPending},
		{ID: 11, Ref: ref, RecipientID: 2, Status: domain.StatusPending},
	}, nil
}

func (f *fakeDispatches) Get(_ context.Context, id int64) (*domain.DispatchRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, dispatch.ErrNotFound
	}
	return rec, nil
}

func (f *fakeDispatches) List(_ context.Context, lf dispatch.ListFilter) ([]domain.DispatchRecord, int, error) {
	f.lastList = lf
	var out []domain.DispatchRecord
	for _, r := range f.records {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (f *fakeDispatches) MarkCancelled(_ context.Context, id int64) (*domain.DispatchRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, dispatch.ErrNotFound
	}
	if rec.Status != domain.StatusPending {
		return nil, dispatch.ErrInvalidTransition
	}
	rec.Status = domain.StatusCancelled
	return rec, nil
}

func (f *fakeDispatches) CancelForObject(_ context.Context, ref domain.Reference, _ string) (int, error) {
	f.cancels = append(f.cancels, ref)
	return 2, nil
}

func (f *fakeDispatches) Registry() *content.Registry { return f.registry }

type apiHarness struct {
	router     http.Handler
	recipients *fakeRecipients
	dispatches *fakeDispatches
}

func newHarness(t *testing.T) *apiHarness {
	t.Helper()
	reg := content.NewRegistry()
	require.NoError(t, reg.Register("newsletter.issue", content.Adapter{IntegerKeys: true}))

	recips := &fakeRecipients{
		recipient: domain.Recipient{ID: 1, Email: "ann@example.com", IsSubscribed: true, CreatedAt: time.Now()},
		goodToken: "good",
	}
	disp := &fakeDispatches{registry: reg, records: map[int64]*domain.DispatchRecord{}}
	return &apiHarness{
		router:     SetupRoutes(NewHandlers(recips, disp), nil, nil),
		recipients: recips,
		dispatches: disp,
	}
}

func (h *apiHarness) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/subscribe", map[string]string{"email": "ann@example.com"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ann@example.com", decodeBody(t, rr)["email"])

	rr = h.do(http.MethodPost, "/subscribe", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(http.MethodPost, "/subscribe", map[string]string{
		"email": "ann@example.com", "first_name": strings.Repeat("a", recipient.MaxNameLength+1),
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "over-long names are a client error")

	rr = h.do(http.MethodPost, "/subscribe", map[string]string{"email": "a@b.co", "favourite": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown fields are rejected")
}

func TestUnsubscribeGetDoesNotMutate(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/unsubscribe/1/good", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeBody(t, rr)["subscribed"])
	assert.Zero(t, h.recipients.unsubscribed)
}

func TestUnsubscribePost(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/unsubscribe/1/good", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, false, body["subscribed"])
	assert.Equal(t, float64(1), body["dispatch_id"])
	assert.Equal(t, 1, h.recipients.unsubscribed)
}

func TestUnsubscribeRejectsBadLinks(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		path string
	}{
		{"wrong token", "/unsubscribe/1/forged"},
		{"unknown dispatch", "/unsubscribe/2/good"},
		{"non-numeric id", "/unsubscribe/abc/good"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(http.MethodPost, tt.path, nil)
			assert.Equal(t, http.StatusNotFound, rr.Code)
		})
	}
	assert.Zero(t, h.recipients.unsubscribed)
}

func TestCreateDispatch(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/dispatches", map[string]any{
		"recipient_id": 1, "content_type": "newsletter.issue", "object_id": "42",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "pending", decodeBody(t, rr)["status"])

	rr = h.do(http.MethodPost, "/dispatches", map[string]any{
		"recipient_id": 1, "content_type": "blog.post", "object_id": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unregistered type")

	rr = h.do(http.MethodPost, "/dispatches", map[string]any{
		"recipient_id": 1, "content_type": "newsletter.issue", "object_id": "abc",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "non-integer id for an integer-keyed type")

	rr = h.do(http.MethodPost, "/dispatches", map[string]any{
		"recipient_id": 0, "content_type": "newsletter.issue", "object_id": "42",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetAndCancelDispatch(t *testing.T) {
	h := newHarness(t)
	h.dispatches.records[5] = &domain.DispatchRecord{ID: 5, Status: domain.StatusPending}

	rr := h.do(http.MethodGet, "/dispatches/5", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(http.MethodGet, "/dispatches/6", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(http.MethodPost, "/dispatches/5/cancel", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rr)["status"])

	rr = h.do(http.MethodPost, "/dispatches/5/cancel", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestListDispatchesFilters(t *testing.T) {
	h := newHarness(t)
	h.dispatches.records[1] = &domain.DispatchRecord{ID: 1, Status: domain.StatusSent}

	rr := h.do(http.MethodGet, "/dispatches?status=sent&manager=digest&recipient_id=7&limit=1000&offset=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	f := h.dispatches.lastList
	assert.Equal(t, domain.StatusSent, f.Status)
	assert.Equal(t, "digest", f.ManagerSlug)
	assert.Equal(t, int64(7), f.RecipientID)
	assert.Equal(t, 500, f.Limit)
	assert.Equal(t, 2, f.Offset)

	pagination := decodeBody(t, rr)["pagination"].(map[string]any)
	assert.Equal(t, float64(1), pagination["total"])

	rr = h.do(http.MethodGet, "/dispatches?status=bounced", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListEndpoints(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/lists", map[string]string{"name": "weekly"})
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = h.do(http.MethodPost, "/lists", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(http.MethodPost, "/lists/3/members", map[string]int64{"recipient_id": 1})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []int64{1}, h.recipients.members[3])

	rr = h.do(http.MethodPost, "/lists/9/members", map[string]int64{"recipient_id": 1})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(http.MethodPost, "/lists/3/dispatches", map[string]any{
		"content_type": "newsletter.issue", "object_id": "42",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, float64(2), decodeBody(t, rr)["created"])
}

func TestCancelForObject(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/objects/blog.post/hello-world/cancel?reason=deleted", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), decodeBody(t, rr)["cancelled"])
	assert.Equal(t, []domain.Reference{{ContentType: "blog.post", ObjectID: "hello-world"}}, h.dispatches.cancels)
}

func TestContentTypes(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/content-types", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{"newsletter.issue"}, decodeBody(t, rr)["content_types"])
}

func TestPaginationHasMore(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?limit=0&offset=10", nil)
	p := ParsePagination(req, 50, 500)
	assert.Equal(t, 50, p.Limit)

	resp := NewPaginatedResponse(nil, p, 100)
	assert.True(t, resp.Pagination.HasMore)
	resp = NewPaginatedResponse(nil, p, 60)
	assert.False(t, resp.Pagination.HasMore)
}
