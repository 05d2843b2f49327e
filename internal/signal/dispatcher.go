package signal

import "sync"

// Notifier receives signals from the execution layer.
type Notifier interface {
	Notify(s Signal)
}

// Handler consumes signals.
type Handler interface {
	Handle(s Signal)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(s Signal)

// Handle calls f(s).
func (f HandlerFunc) Handle(s Signal) { f(s) }

// Dispatcher fans signals out to its handlers, synchronously and in subscription order.
// Handlers run without any dispatcher lock held and may subscribe or notify again.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe appends a handler.
func (d *Dispatcher) Subscribe(h Handler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// Notify delivers s to every handler.
func (d *Dispatcher) Notify(s Signal) {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	for _, h := range handlers {
		h.Handle(s)
	}
}

// Recorder keeps every signal it receives.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

// Handle records s.
func (r *Recorder) Handle(s Signal) {
	r.mu.Lock()
	r.signals = append(r.signals, s)
	r.mu.Unlock()
}

// Notify records s, so a Recorder can stand in for a Notifier.
func (r *Recorder) Notify(s Signal) {
	r.Handle(s)
}

// Signals returns a copy of the recorded signals.
func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

// Kinds returns the kinds of the recorded signals, in order.
func (r *Recorder) Kinds() []string {
	signals := r.Signals()
	kinds := make([]string, len(signals))
	for i, s := range signals {
		kinds[i] = s.Kind()
	}
	return kinds
}

// Reset drops every recorded signal.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.signals = nil
	r.mu.Unlock()
}
