package dbus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/busdemo/internal/model"
)

// Recorder receives a call record when a call is sent and again when it
// resolves. The store implements it.
type Recorder interface {
	Record(rec model.CallRecord) error
}

// Client issues the demo's method calls through a Transport. Each call is
// sent exactly once; retry policy, if any, belongs to the transport.
type Client struct {
	transport Transport
	logger    *slog.Logger
	timeout   time.Duration
	dispatch  Dispatcher
	recorder  Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds every call. Zero waits for the reply indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithDispatcher sets where asynchronous completion callbacks run.
func WithDispatcher(dispatch Dispatcher) Option {
	return func(c *Client) {
		if dispatch != nil {
			c.dispatch = dispatch
		}
	}
}

// WithRecorder makes the client report every call to r.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// NewClient creates a Client over the given transport.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    slog.Default(),
		dispatch:  inlineDispatcher,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-call timeout, zero meaning none.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func notifyCall(p Payload) MethodCall {
	return MethodCall{
		Destination: NotificationsService,
		Path:        NotificationsPath,
		Interface:   NotificationsInterface,
		Method:      "Notify",
		Args:        p.Args(),
	}
}

// Send delivers a built payload and blocks until the daemon replies.
// In a UI this stalls the event loop for the whole round trip; the UIs
// use SendAsync.
func (c *Client) Send(ctx context.Context, p Payload) (Result, error) {
	return callSync(c, ctx, model.KindNotify, notifyCall(p), parseNotifyReply, annotateNotify(p))
}

// SendAsync delivers a built payload without blocking. done is invoked
// exactly once, through the client's dispatcher. See Dispatcher for when
// that is ordered after SendAsync returns.
func (c *Client) SendAsync(ctx context.Context, p Payload, done func(Result, error)) *Pending[Result] {
	return callAsync(c, ctx, model.KindNotify, notifyCall(p), parseNotifyReply, annotateNotify(p), done)
}

// Notify builds req and sends it synchronously. An invalid request fails
// before anything is sent.
func (c *Client) Notify(ctx context.Context, req NotificationRequest) (Result, error) {
	p, err := Build(req)
	if err != nil {
		return Result{}, err
	}
	return c.Send(ctx, p)
}

// NotifyAsync builds req and sends it asynchronously. An invalid request
// is returned as an error and done is never called.
func (c *Client) NotifyAsync(ctx context.Context, req NotificationRequest, done func(Result, error)) (*Pending[Result], error) {
	p, err := Build(req)
	if err != nil {
		return nil, err
	}
	return c.SendAsync(ctx, p, done), nil
}

// CloseNotification asks the daemon to close a notification.
func (c *Client) CloseNotification(ctx context.Context, id uint32) error {
	call := MethodCall{
		Destination: NotificationsService,
		Path:        NotificationsPath,
		Interface:   NotificationsInterface,
		Method:      "CloseNotification",
		Args:        []any{id},
	}
	_, err := callSync(c, ctx, model.KindClose, call, parseEmptyReply, func(rec *model.CallRecord, _ struct{}) {
		rec.NotificationID = id
	})
	return err
}

// Capabilities returns the optional features the daemon supports.
func (c *Client) Capabilities(ctx context.Context) ([]string, error) {
	call := MethodCall{
		Destination: NotificationsService,
		Path:        NotificationsPath,
		Interface:   NotificationsInterface,
		Method:      "GetCapabilities",
	}
	return callSync(c, ctx, model.KindCapabilities, call, parseCapabilitiesReply, nil)
}

// ServerInformation returns the daemon's name, vendor and versions.
func (c *Client) ServerInformation(ctx context.Context) (ServerInfo, error) {
	call := MethodCall{
		Destination: NotificationsService,
		Path:        NotificationsPath,
		Interface:   NotificationsInterface,
		Method:      "GetServerInformation",
	}
	return callSync(c, ctx, model.KindServerInfo, call, parseServerInfoReply, nil)
}

func annotateNotify(p Payload) func(*model.CallRecord, Result) {
	return func(rec *model.CallRecord, r Result) {
		rec.Summary = p.Summary
		rec.NotificationID = r.ID
	}
}

// callSync performs one blocking call.
func callSync[T any](
	c *Client,
	ctx context.Context,
	kind model.CallKind,
	call MethodCall,
	parse func([]any) (T, error),
	annotate func(*model.CallRecord, T),
) (T, error) {
	rec := c.begin(kind, model.ModeSync, call)

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	c.logger.Debug("calling", "call_id", rec.ID, "call", call.String(), "mode", model.ModeSync)
	body, err := c.transport.Call(callCtx, call)
	value, err := finishReply(call, body, err, false, parse)

	endCall(c, rec, value, err, annotate)
	return value, err
}

type reply struct {
	body []any
	err  error
}

// callAsync starts one non-blocking call and returns its handle.
func callAsync[T any](
	c *Client,
	ctx context.Context,
	kind model.CallKind,
	call MethodCall,
	parse func([]any) (T, error),
	annotate func(*model.CallRecord, T),
	done func(T, error),
) *Pending[T] {
	p := newPending[T]()
	rec := c.begin(kind, model.ModeAsync, call)

	callCtx, cancel := c.callContext(ctx)
	p.markSent(cancel)

	replies := make(chan reply, 1)
	returned := make(chan struct{})

	c.logger.Debug("calling", "call_id", rec.ID, "call", call.String(), "mode", model.ModeAsync)
	c.transport.Go(callCtx, call, func(body []any, err error) {
		select {
		case replies <- reply{body: body, err: err}:
		default:
			// A second completion from a misbehaving transport is dropped.
		}
	})

	go func() {
		defer cancel()

		var r reply
		select {
		case r = <-replies:
		case <-callCtx.Done():
			r = reply{err: callCtx.Err()}
		}
		<-returned

		value, err := finishReply(call, r.body, r.err, p.wasCancelled(), parse)
		endCall(c, rec, value, err, annotate)
		if !p.resolve(value, err) {
			return
		}

		if done != nil {
			c.dispatch(func() { done(value, err) })
		}
	}()

	close(returned)
	return p
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// finishReply turns a transport outcome into a typed value or error.
func finishReply[T any](call MethodCall, body []any, err error, cancelled bool, parse func([]any) (T, error)) (T, error) {
	var zero T
	op := call.Member()
	switch {
	case err == nil:
	case cancelled, errors.Is(err, context.Canceled):
		return zero, cancelledErr(op, err)
	default:
		return zero, transportErr(op, err)
	}

	value, err := parse(body)
	if err != nil {
		var callErr *CallError
		if errors.As(err, &callErr) {
			callErr.Op = op
			return zero, callErr
		}
		return zero, protocolf(op, "%v", err)
	}
	return value, nil
}

func (c *Client) begin(kind model.CallKind, mode model.Mode, call MethodCall) *model.CallRecord {
	rec, err := model.NewCallRecord(kind, mode)
	if err != nil {
		c.logger.Warn("failed to create call record", "error", err)
		rec = &model.CallRecord{Kind: kind, Mode: mode, StartedAt: time.Now()}
	}
	rec.Destination = call.Destination
	rec.Path = string(call.Path)
	rec.Member = call.Member()
	rec.State = StateSent.String()
	c.record(rec)
	return rec
}

func endCall[T any](c *Client, rec *model.CallRecord, value T, err error, annotate func(*model.CallRecord, T)) {
	state := StateCompleted
	if err != nil {
		state = StateFailed
		c.logger.Warn("call failed", "call_id", rec.ID, "member", rec.Member, "error", err)
	}
	if annotate != nil {
		annotate(rec, value)
	}
	rec.Finish(state.String(), err)
	c.logger.Debug("call finished", "call_id", rec.ID, "member", rec.Member, "state", rec.State,
		"duration", rec.Duration())
	c.record(rec)
}

func (c *Client) record(rec *model.CallRecord) {
	if c.recorder == nil || rec.ID == "" {
		return
	}
	if err := c.recorder.Record(*rec); err != nil {
		c.logger.Warn("failed to record call", "call_id", rec.ID, "error", err)
	}
}

func parseNotifyReply(body []any) (Result, error) {
	if len(body) != 1 {
		return Result{}, protocolf("", "reply has signature %q, want %q", dbus.SignatureOf(body...).String(), NotifyReplySignature)
	}
	id, ok := body[0].(uint32)
	if !ok {
		return Result{}, protocolf("", "reply has signature %q, want %q", dbus.SignatureOf(body...).String(), NotifyReplySignature)
	}
	return Result{ID: id}, nil
}

func parseEmptyReply(body []any) (struct{}, error) {
	if len(body) != 0 {
		return struct{}{}, protocolf("", "expected empty reply, got %d values", len(body))
	}
	return struct{}{}, nil
}

func parseCapabilitiesReply(body []any) ([]string, error) {
	if len(body) != 1 {
		return nil, protocolf("", "expected 1 value, got %d", len(body))
	}
	caps, ok := body[0].([]string)
	if !ok {
		return nil, protocolf("", "capabilities have type %T, want []string", body[0])
	}
	return caps, nil
}

func parseServerInfoReply(body []any) (ServerInfo, error) {
	var info ServerInfo
	if err := dbus.Store(body, &info.Name, &info.Vendor, &info.Version, &info.SpecVersion); err != nil {
		return ServerInfo{}, protocolf("", "%v", err)
	}
	return info, nil
}
