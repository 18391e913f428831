package models

// TickWindow is a fixed-capacity FIFO of recent prices for one instrument.
// It is owned by a single dispatch loop and is not safe for concurrent use.
type TickWindow struct {
	capacity int
	prices   []float64
}

// NewTickWindow creates an empty window; capacity below 1 is treated as 1.
func NewTickWindow(capacity int) *TickWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &TickWindow{
		capacity: capacity,
		prices:   make([]float64, 0, capacity),
	}
}

// Push appends a price, evicting the oldest one when full.
func (w *TickWindow) Push(price float64) {
	if len(w.prices) == w.capacity {
		copy(w.prices, w.prices[1:])
		w.prices = w.prices[:w.capacity-1]
	}
	w.prices = append(w.prices, price)
}

// Load replaces the contents with the newest prices from a history snapshot.
func (w *TickWindow) Load(history []float64) {
	if len(history) > w.capacity {
		history = history[len(history)-w.capacity:]
	}
	w.prices = append(w.prices[:0], history...)
}

// Snapshot returns a copy that detectors may keep.
func (w *TickWindow) Snapshot() []float64 {
	out := make([]float64, len(w.prices))
	copy(out, w.prices)
	return out
}

// Last returns the newest price, or 0 if empty.
func (w *TickWindow) Last() float64 {
	if len(w.prices) == 0 {
		return 0
	}
	return w.prices[len(w.prices)-1]
}

// Len returns the number of stored prices.
func (w *TickWindow) Len() int { return len(w.prices) }

// Cap returns the fixed capacity.
func (w *TickWindow) Cap() int { return w.capacity }

// Clear empties the window.
func (w *TickWindow) Clear() { w.prices = w.prices[:0] }
