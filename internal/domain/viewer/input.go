package viewer

import (
	"math"
	"time"
)

// Keyboard navigation constants. A key-down edge fires one eased scroll;
// holding past the delay switches to fixed-interval direct increments
// until the last navigation key is released.
const (
	holdDelay       = 300 * time.Millisecond
	holdInterval    = 50 * time.Millisecond
	arrowNudge      = 150.0
	arrowRepeat     = 80.0
	pageKeyRepeat   = 300.0
	shiftFraction   = 0.8 // Shift+arrow scrolls 80% of the viewport
	pageKeyFraction = 0.9 // PageUp/PageDown scroll 90% of the viewport
)

// Key names follow the DOM KeyboardEvent values the view forwards.
const (
	KeyArrowUp   = "ArrowUp"
	KeyArrowDown = "ArrowDown"
	KeyPageUp    = "PageUp"
	KeyPageDown  = "PageDown"
	KeyHome      = "Home"
	KeyEnd       = "End"
	KeyEscape    = "Escape"
)

// Modifiers carries the modifier state of a key event.
type Modifiers struct {
	Shift bool `json:"shift"`
	Ctrl  bool `json:"ctrl"`
}

func keyDirection(key string) float64 {
	switch key {
	case KeyArrowUp, KeyPageUp, KeyHome:
		return -1
	case KeyArrowDown, KeyPageDown, KeyEnd:
		return 1
	}
	return 0
}

func isNavKey(key string) bool { return keyDirection(key) != 0 }

// KeyDown handles a key press edge. Repeated key-down events for a held
// key are ignored; the continuous phase is timer-driven instead.
func (e *Engine) KeyDown(key string, mods Modifiers) {
	e.mu.Lock()
	if key == KeyEscape {
		addMode := e.addMode
		e.mu.Unlock()
		if addMode && e.onCancelAdd != nil {
			e.onCancelAdd()
		}
		return
	}
	if e.editing || e.modalOpen || e.transitioning || !isNavKey(key) || e.pressed[key] {
		e.mu.Unlock()
		return
	}
	e.pressed[key] = true

	dir := keyDirection(key)
	var target float64
	var d time.Duration
	switch {
	case mods.Ctrl || key == KeyHome || key == KeyEnd:
		if dir < 0 {
			target = 0
		} else {
			target = e.layout.MaxScroll()
		}
		d = jumpDuration
	case key == KeyPageUp || key == KeyPageDown:
		target = e.scrollTop + dir*e.layout.ViewportHeight*pageKeyFraction
		d = viewportDuration
	case mods.Shift:
		target = e.scrollTop + dir*e.layout.ViewportHeight*shiftFraction
		d = viewportDuration
	default:
		target = e.scrollTop + dir*arrowNudge
		d = nudgeDuration
	}

	// Home/End are one-shot jumps; held arrows and page keys switch to
	// continuous scrolling after the delay.
	continuous := key != KeyHome && key != KeyEnd && !mods.Ctrl
	if continuous && e.holdTimer == nil && e.holdRepeat == nil {
		e.holdTimer = e.clk.AfterFunc(holdDelay, e.startContinuous)
	}
	e.mu.Unlock()

	e.AnimateTo(target, d)
}

// startContinuous begins the fixed-interval phase of held-key scrolling.
func (e *Engine) startContinuous() {
	e.mu.Lock()
	e.holdTimer = nil
	if len(e.pressed) == 0 || e.holdRepeat != nil {
		e.mu.Unlock()
		return
	}
	e.holdRepeat = e.clk.Interval(holdInterval, func() {
		e.mu.Lock()
		delta := 0.0
		for key := range e.pressed {
			switch key {
			case KeyArrowUp, KeyArrowDown:
				delta += keyDirection(key) * arrowRepeat
			case KeyPageUp, KeyPageDown:
				delta += keyDirection(key) * pageKeyRepeat
			}
		}
		if delta == 0 {
			e.mu.Unlock()
			return
		}
		e.stopAnimationLocked()
		changed := e.setScrollTopLocked(e.scrollTop + delta)
		e.mu.Unlock()
		e.notifyPage(changed)
	})
	e.mu.Unlock()
}

// KeyUp releases a held key; releasing the last navigation key stops the
// continuous-scroll timers.
func (e *Engine) KeyUp(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pressed, key)
	if len(e.pressed) > 0 {
		return
	}
	if e.holdTimer != nil {
		e.holdTimer.Stop()
		e.holdTimer = nil
	}
	if e.holdRepeat != nil {
		e.holdRepeat.Stop()
		e.holdRepeat = nil
	}
}

// Wheel thresholds: small pixel deltas are trackpad gestures applied
// directly with damping, larger ones are discrete wheel notches routed
// through the eased scroll.
const (
	trackpadThreshold = 50.0
	trackpadDamping   = 0.5
	wheelNotch        = 120.0
)

// Wheel handles a wheel event. Horizontal gestures are ignored, as is all
// wheel input mid-transition.
func (e *Engine) Wheel(deltaX, deltaY float64) {
	e.mu.Lock()
	if e.transitioning || math.Abs(deltaX) > math.Abs(deltaY) || deltaY == 0 {
		e.mu.Unlock()
		return
	}
	if math.Abs(deltaY) < trackpadThreshold {
		e.stopAnimationLocked()
		changed := e.setScrollTopLocked(e.scrollTop + deltaY*trackpadDamping)
		e.mu.Unlock()
		e.notifyPage(changed)
		return
	}
	target := e.scrollTop + math.Copysign(wheelNotch, deltaY)
	e.mu.Unlock()

	e.AnimateTo(target, wheelScrollDuration)
}
