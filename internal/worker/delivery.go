package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/dispatch/internal/content"
	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/pkg/distlock"
	"github.com/ignite/dispatch/internal/pkg/logger"
	"github.com/ignite/dispatch/internal/service/dispatch"
	"github.com/ignite/dispatch/internal/service/recipient"
	"github.com/ignite/dispatch/internal/transport"
)

// =============================================================================
// DELIVERY WORKER
// =============================================================================
// Polls due PENDING dispatch records per manager slug, resolves the mailed
// object through the content registry, hands the message to a transport and
// records the outcome. One poller per manager slug is active at a time
// across all processes (distributed lock); rows are additionally claimed
// with SKIP LOCKED so overlapping pollers never deliver the same record.

const (
	DefaultPollInterval = 15 * time.Second
	DefaultBatchSize    = 100
	DefaultConcurrency  = 8
	DefaultLease        = 5 * time.Minute
)

// Claimer leases due records for delivery.
type Claimer interface {
	ClaimDue(ctx context.Context, f dispatch.DueFilter, lease time.Duration) ([]domain.DispatchRecord, error)
}

// StatusMarker records delivery outcomes.
type StatusMarker interface {
	MarkSent(ctx context.Context, id int64) (*domain.DispatchRecord, error)
	MarkError(ctx context.Context, id int64, message string) (*domain.DispatchRecord, error)
	MarkCancelled(ctx context.Context, id int64) (*domain.DispatchRecord, error)
	MarkUnsubscribed(ctx context.Context, id int64) (*domain.DispatchRecord, error)
}

// RecipientGetter loads the recipient of a record.
type RecipientGetter interface {
	Get(ctx context.Context, id int64) (*domain.Recipient, error)
}

// TokenGenerator issues unsubscribe tokens.
type TokenGenerator interface {
	Generate(ref domain.Reference, r domain.Recipient) string
}

// LockFactory builds the lock guarding one manager slug.
type LockFactory func(key string) distlock.DistLock

// Options configures a DeliveryWorker.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	Lease        time.Duration
	// Managers restricts the worker to these slugs. Empty means every slug.
	Managers []string

	FromName  string
	FromEmail string
	ReplyTo   string
	// UnsubscribeBaseURL is the public prefix of the unsubscribe route,
	// e.g. https://mail.example.com. No List-Unsubscribe header is added
	// when empty.
	UnsubscribeBaseURL string
}

func (o *Options) withDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Lease <= 0 {
		o.Lease = DefaultLease
	}
}

// Stats counts delivery outcomes since the worker was created.
type Stats struct {
	Sent         int64
	Failed       int64
	Cancelled    int64
	Unsubscribed int64
	Skipped      int64
}

// DeliveryWorker drives due dispatch records through a transport.
type DeliveryWorker struct {
	claimer    Claimer
	marker     StatusMarker
	registry   *content.Registry
	lookup     content.Lookup
	recipients RecipientGetter
	sender     transport.Sender
	tokens     TokenGenerator
	locks      LockFactory
	opts       Options
	workerID   string
	now        func() time.Time

	sent, failed, cancelled, unsubscribed, skipped int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewDeliveryWorker creates a worker. lookup may be nil, in which case each
// content type's adapter lookup is used.
func NewDeliveryWorker(
	claimer Claimer,
	marker StatusMarker,
	registry *content.Registry,
	lookup content.Lookup,
	recipients RecipientGetter,
	sender transport.Sender,
	tokens TokenGenerator,
	locks LockFactory,
	opts Options,
) *DeliveryWorker {
	opts.withDefaults()
	return &DeliveryWorker{
		claimer:    claimer,
		marker:     marker,
		registry:   registry,
		lookup:     lookup,
		recipients: recipients,
		sender:     sender,
		tokens:     tokens,
		locks:      locks,
		opts:       opts,
		workerID:   fmt.Sprintf("delivery-%s-%s", getHostname(), uuid.NewString()[:8]),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the polling loop.
func (w *DeliveryWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("delivery worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	logger.Info("delivery worker starting",
		"worker_id", w.workerID,
		"interval", w.opts.PollInterval.String(),
		"managers", strings.Join(w.opts.Managers, ","),
		"transport", string(w.sender.Type()))

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop cancels polling and waits for in-flight deliveries.
func (w *DeliveryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	s := w.Stats()
	logger.Info("delivery worker stopped",
		"worker_id", w.workerID, "sent", s.Sent, "failed", s.Failed,
		"cancelled", s.Cancelled, "unsubscribed", s.Unsubscribed)
}

// Stats returns a snapshot of the outcome counters.
func (w *DeliveryWorker) Stats() Stats {
	return Stats{
		Sent:         atomic.LoadInt64(&w.sent),
		Failed:       atomic.LoadInt64(&w.failed),
		Cancelled:    atomic.LoadInt64(&w.cancelled),
		Unsubscribed: atomic.LoadInt64(&w.unsubscribed),
		Skipped:      atomic.LoadInt64(&w.skipped),
	}
}

func (w *DeliveryWorker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(w.ctx); err != nil && w.ctx.Err() == nil {
			logger.Error("delivery poll failed", "worker_id", w.workerID, "error", err)
		}
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *DeliveryWorker) managers() []string {
	if len(w.opts.Managers) == 0 {
		return []string{""}
	}
	return w.opts.Managers
}

// RunOnce performs a single poll over every configured manager slug.
func (w *DeliveryWorker) RunOnce(ctx context.Context) error {
	var errs []error
	for _, slug := range w.managers() {
		if err := w.pollManager(ctx, slug); err != nil {
			errs = append(errs, fmt.Errorf("manager %q: %w", slug, err))
		}
	}
	return errors.Join(errs...)
}

func (w *DeliveryWorker) pollManager(ctx context.Context, slug string) error {
	if w.locks != nil {
		lock := w.locks(distlock.ManagerKey(slug))
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !acquired {
			logger.Debug("manager busy on another worker", "manager", slug)
			return nil
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	recs, err := w.claimer.ClaimDue(ctx, dispatch.DueFilter{
		Now:         w.now(),
		ManagerSlug: slug,
		Limit:       w.opts.BatchSize,
	}, w.opts.Lease)
	if err != nil {
		return fmt.Errorf("claim due: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	logger.Debug("claimed due dispatches", "manager", slug, "records", len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for i := range recs {
		rec := recs[i]
		g.Go(func() error {
			w.deliver(gctx, rec)
			return nil
		})
	}
	return g.Wait()
}

// deliver runs one record to a terminal status. Failures are recorded on
// the record itself; nothing is retried.
func (w *DeliveryWorker) deliver(ctx context.Context, rec domain.DispatchRecord) {
	r, err := w.recipients.Get(ctx, rec.RecipientID)
	if errors.Is(err, recipient.ErrNotFound) {
		w.markError(ctx, rec, "recipient not found")
		return
	}
	if err != nil {
		logger.Warn("load recipient", "dispatch_id", rec.ID, "error", err)
		atomic.AddInt64(&w.skipped, 1)
		return
	}
	if !r.IsSubscribed {
		w.record(rec, &w.unsubscribed, func() (*domain.DispatchRecord, error) {
			return w.marker.MarkUnsubscribed(ctx, rec.ID)
		})
		return
	}

	obj, err := w.registry.Resolve(ctx, rec.Ref, w.lookup)
	switch {
	case errors.Is(err, content.ErrObjectNotFound):
		w.record(rec, &w.cancelled, func() (*domain.DispatchRecord, error) {
			return w.marker.MarkCancelled(ctx, rec.ID)
		})
		return
	case err != nil:
		w.markError(ctx, rec, err.Error())
		return
	}

	adapter, err := w.registry.Adapter(rec.Ref.ContentType)
	if err != nil {
		w.markError(ctx, rec, err.Error())
		return
	}
	body, err := adapter.BodyFor(ctx, obj)
	if err != nil {
		w.markError(ctx, rec, fmt.Sprintf("render: %v", err))
		return
	}

	msg := &domain.EmailMessage{
		DispatchID:  rec.ID,
		RecipientID: r.ID,
		To:          r.String(),
		FromName:    w.opts.FromName,
		FromEmail:   w.opts.FromEmail,
		ReplyTo:     w.opts.ReplyTo,
		Subject:     adapter.SubjectFor(obj),
		HTMLContent: body.HTML,
		TextContent: body.Text,
		Headers:     w.headers(rec, *r),
		ManagerSlug: rec.ManagerSlug,
	}

	res, err := w.sender.Send(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-send: leave the record pending; the lease expires.
			atomic.AddInt64(&w.skipped, 1)
			return
		}
		w.markError(ctx, rec, err.Error())
		return
	}
	// The message is out; record it even if shutdown began meanwhile.
	sentCtx := context.WithoutCancel(ctx)
	w.record(rec, &w.sent, func() (*domain.DispatchRecord, error) {
		return w.marker.MarkSent(sentCtx, rec.ID)
	})
	logger.Debug("dispatch delivered", "dispatch_id", rec.ID, "message_id", res.MessageID)
}

func (w *DeliveryWorker) headers(rec domain.DispatchRecord, r domain.Recipient) map[string]string {
	h := map[string]string{"X-Dispatch-ID": strconv.FormatInt(rec.ID, 10)}
	if link := w.UnsubscribeURL(rec, r); link != "" {
		h["List-Unsubscribe"] = "<" + link + ">"
		h["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
	}
	return h
}

// UnsubscribeURL returns the tokenized unsubscribe link for a record, or ""
// when no base URL or token generator is configured.
func (w *DeliveryWorker) UnsubscribeURL(rec domain.DispatchRecord, r domain.Recipient) string {
	if w.opts.UnsubscribeBaseURL == "" || w.tokens == nil {
		return ""
	}
	tok := w.tokens.Generate(rec.Ref, r)
	return strings.TrimRight(w.opts.UnsubscribeBaseURL, "/") +
		"/unsubscribe/" + strconv.FormatInt(rec.ID, 10) + "/" + url.PathEscape(tok)
}

func (w *DeliveryWorker) markError(ctx context.Context, rec domain.DispatchRecord, message string) {
	w.record(rec, &w.failed, func() (*domain.DispatchRecord, error) {
		return w.marker.MarkError(ctx, rec.ID, message)
	})
	logger.Warn("dispatch failed", "dispatch_id", rec.ID, "reason", message)
}

// record applies a transition. Losing the race to another writer (for
// example an administrative cancel) is not an error.
func (w *DeliveryWorker) record(rec domain.DispatchRecord, counter *int64, mark func() (*domain.DispatchRecord, error)) {
	if _, err := mark(); err != nil {
		if errors.Is(err, dispatch.ErrInvalidTransition) {
			logger.Info("dispatch already finalized", "dispatch_id", rec.ID)
			atomic.AddInt64(&w.skipped, 1)
			return
		}
		logger.Error("record dispatch status", "dispatch_id", rec.ID, "error", err)
		atomic.AddInt64(&w.skipped, 1)
		return
	}
	atomic.AddInt64(counter, 1)
}
