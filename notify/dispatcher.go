/*
Package notify delivers leave notifications outside the ledger transaction.

PURPOSE:
  Ledger mutations commit first. Only then is a Task enqueued here; a
  worker goroutine sends the email and writes the in-app notification,
  each retried on its own with exponential backoff. Delivery failures are
  logged and dropped, never reported back to the component that enqueued.

QUEUE:
  Buffered channel. Enqueue never blocks: a full queue drops the task with
  a warning.

SEE ALSO:
  - mailer.go: SMTP and no-op mailers
  - templates.go: Email templates
  - leave/reservation.go: Enqueues status-change tasks
*/
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/ledger"
)

// Email is sendEmail({to, templateType, data}).
type Email struct {
	To           string
	TemplateType string
	Data         map[string]any
}

// Task is one unit of outbound delivery. Either part may be nil.
type Task struct {
	TenantID     string
	UserID       string
	Email        *Email
	Notification *ledger.Notification
}

type Options struct {
	Store       ledger.NotificationStore
	Mailer      Mailer
	From        string
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	Logger      *slog.Logger
}

type Dispatcher struct {
	store       ledger.NotificationStore
	mailer      Mailer
	from        string
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger

	queue chan Task
	wg    sync.WaitGroup
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Mailer == nil {
		opts.Mailer = noopMailer{}
	}
	if opts.From == "" {
		opts.From = "no-reply@example.com"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		store:       opts.Store,
		mailer:      opts.Mailer,
		from:        opts.From,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		logger:      opts.Logger,
		queue:       make(chan Task, opts.QueueSize),
	}
}

// Enqueue hands a task to the worker. Returns false if the queue is full.
func (d *Dispatcher) Enqueue(t Task) bool {
	select {
	case d.queue <- t:
		return true
	default:
		d.logger.Warn("notification queue full, task dropped",
			"tenantId", t.TenantID, "userId", t.UserID)
		return false
	}
}

// Start runs the worker until ctx is cancelled, then drains what is left
// in the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.worker(ctx)
}

// Wait blocks until the worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case t := <-d.queue:
			d.Deliver(ctx, t)
		}
	}
}

func (d *Dispatcher) drain() {
	// The worker context is already done; leftovers get a short window.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case t := <-d.queue:
			d.Deliver(ctx, t)
		default:
			return
		}
	}
}

// Deliver sends both parts of a task. Email and in-app record are retried
// independently; a failure of one does not hold back the other.
func (d *Dispatcher) Deliver(ctx context.Context, t Task) {
	if t.Notification != nil && d.store != nil {
		n := *t.Notification
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		err := d.retry(ctx, func() error { return d.store.CreateNotification(ctx, n) })
		if err != nil {
			d.logger.Warn("in-app notification failed",
				"tenantId", t.TenantID, "userId", t.UserID, "type", n.Type, "err", err)
		}
	}

	if t.Email != nil && t.Email.To != "" {
		subject, body, err := Render(t.Email.TemplateType, t.Email.Data)
		if err != nil {
			d.logger.Warn("email render failed",
				"tenantId", t.TenantID, "template", t.Email.TemplateType, "err", err)
			return
		}
		err = d.retry(ctx, func() error { return d.mailer.Send(ctx, d.from, t.Email.To, subject, body) })
		if err != nil {
			d.logger.Warn("notification email send failed",
				"tenantId", t.TenantID, "userId", t.UserID, "template", t.Email.TemplateType, "err", err)
		}
	}
}

func (d *Dispatcher) retry(ctx context.Context, fn func() error) error {
	wait := d.backoff
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == d.maxAttempts {
			break
		}
		d.logger.Debug("delivery attempt failed", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
