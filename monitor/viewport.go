package monitor

import "sync"

// Viewport is the visitor's window onto the page.
type Viewport interface {
	// ScrollTop returns the current vertical scroll offset.
	ScrollTop() float64

	// Height returns the current window height.
	Height() float64

	// Subscribe registers fn to run on every raw scroll event. The returned
	// function removes it and may be called any number of times.
	Subscribe(fn func()) (unsubscribe func())
}

// Feed is a Viewport driven by pushed positions: beacons from a real page,
// or a test. It is safe for concurrent use.
type Feed struct {
	mu        sync.Mutex
	top       float64
	height    float64
	nextID    int
	listeners map[int]func()
}

// NewFeed returns a Feed scrolled to the top of a window of height px.
func NewFeed(height float64) *Feed {
	return &Feed{height: height, listeners: make(map[int]func())}
}

func (f *Feed) ScrollTop() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.top
}

func (f *Feed) Height() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height
}

// ScrollTo records a scroll to top and dispatches one scroll event.
func (f *Feed) ScrollTo(top float64) {
	f.mu.Lock()
	h := f.height
	f.mu.Unlock()
	f.Update(top, h)
}

// Resize changes the window height and dispatches one scroll event.
func (f *Feed) Resize(height float64) {
	f.mu.Lock()
	top := f.top
	f.mu.Unlock()
	f.Update(top, height)
}

// Update sets both values and dispatches one scroll event. A non-positive
// height keeps the previous one.
func (f *Feed) Update(top, height float64) {
	f.mu.Lock()
	f.top = top
	if height > 0 {
		f.height = height
	}
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (f *Feed) Subscribe(fn func()) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// Listeners returns the number of subscribed listeners.
func (f *Feed) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}
