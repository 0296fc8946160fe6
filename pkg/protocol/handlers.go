package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// HandlerFunc serves a request method. The returned map becomes the result of
// a successful response; an error becomes a failed response.
type HandlerFunc func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)

// SubscriberFunc receives notification data for one event.
type SubscriberFunc func(ctx context.Context, data map[string]interface{}) error

type senderKey struct{}

// WithSender returns ctx carrying the sender of the envelope being served.
func WithSender(ctx context.Context, sender string) context.Context {
	return context.WithValue(ctx, senderKey{}, sender)
}

// SenderFromContext returns the sender of the envelope being served, or "".
func SenderFromContext(ctx context.Context) string {
	s, _ := ctx.Value(senderKey{}).(string)
	return s
}

// RegisterHandler binds fn to method. The last registration wins.
func (e *Endpoint) RegisterHandler(method string, fn HandlerFunc) {
	e.handlersMu.Lock()
	_, replaced := e.handlers[method]
	e.handlers[method] = fn
	e.handlersMu.Unlock()
	if replaced {
		slog.Info(fmt.Sprintf("%s - Replaced handler for method: %s", logPrefix, method))
		return
	}
	slog.Info(fmt.Sprintf("%s - Registered handler for method: %s", logPrefix, method))
}

// Subscribe adds fn to the subscribers of event.
func (e *Endpoint) Subscribe(event string, fn SubscriberFunc) {
	e.handlersMu.Lock()
	e.subscribers[event] = append(e.subscribers[event], fn)
	e.handlersMu.Unlock()
	slog.Info(fmt.Sprintf("%s - Subscribed to event: %s", logPrefix, event))
}

// Methods returns the number of registered handlers.
func (e *Endpoint) Methods() int {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	return len(e.handlers)
}

func (e *Endpoint) handler(method string) (HandlerFunc, bool) {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	fn, ok := e.handlers[method]
	return fn, ok
}

func (e *Endpoint) subscribersOf(event string) []SubscriberFunc {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	return append([]SubscriberFunc(nil), e.subscribers[event]...)
}

// invokeHandler runs fn, turning a panic into an error.
func invokeHandler(ctx context.Context, method string, fn HandlerFunc, params map[string]interface{}) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - handler %s panicked: %v\n%s", logPrefix, method, r, debug.Stack()))
			result, err = nil, fmt.Errorf("handler %s panicked: %v", method, r)
		}
	}()
	return fn(ctx, params)
}

// notify runs every subscriber of event in order. A failing or panicking
// subscriber is logged and does not stop delivery to the rest.
func (e *Endpoint) notify(ctx context.Context, event string, data map[string]interface{}) int {
	delivered := 0
	for i, fn := range e.subscribersOf(event) {
		if err := callSubscriber(ctx, fn, data); err != nil {
			slog.Error(fmt.Sprintf("%s - subscriber %d for %s failed: %v", logPrefix, i, event, err))
			continue
		}
		delivered++
	}
	return delivered
}

func callSubscriber(ctx context.Context, fn SubscriberFunc, data map[string]interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, data)
}
