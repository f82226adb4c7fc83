package sampler

import "strings"

// Key is a directional key the sampler listens to.
type Key int

const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	default:
		return "none"
	}
}

// ParseKey maps a browser key name to a Key. Arrow keys and WASD are
// recognised; anything else is KeyNone.
func ParseKey(name string) Key {
	switch name {
	case "ArrowUp", "Up":
		return KeyUp
	case "ArrowDown", "Down":
		return KeyDown
	case "ArrowLeft", "Left":
		return KeyLeft
	case "ArrowRight", "Right":
		return KeyRight
	}
	switch strings.ToLower(name) {
	case "w":
		return KeyUp
	case "s":
		return KeyDown
	case "a":
		return KeyLeft
	case "d":
		return KeyRight
	}
	return KeyNone
}

// EventKind is the kind of an InputEvent.
type EventKind int

const (
	KeyDownEvent EventKind = iota
	KeyUpEvent
	FocusLost
)

// InputEvent is one keyboard or focus event from the operator's UI.
// TextFocus reports whether a text-editable control had focus when the
// event fired.
type InputEvent struct {
	Kind      EventKind
	Key       Key
	TextFocus bool
}

// Keyboard is the held/released state of the directional keys.
// It is a value: Apply returns the updated state.
type Keyboard struct {
	Up, Down, Left, Right bool
}

// Apply returns the state after ev. Events fired while a text control has
// focus leave the state untouched; FocusLost releases every key.
func (k Keyboard) Apply(ev InputEvent) Keyboard {
	if ev.Kind == FocusLost {
		return Keyboard{}
	}
	if ev.TextFocus {
		return k
	}

	down := ev.Kind == KeyDownEvent
	switch ev.Key {
	case KeyUp:
		k.Up = down
	case KeyDown:
		k.Down = down
	case KeyLeft:
		k.Left = down
	case KeyRight:
		k.Right = down
	}
	return k
}

// Held reports whether any directional key is down.
func (k Keyboard) Held() bool {
	return k.Up || k.Down || k.Left || k.Right
}

// Override returns the signed pitch and roll contributions of the held keys.
// Opposing keys cancel.
func (k Keyboard) Override(magnitude float64) (pitch, roll float64) {
	if k.Up {
		pitch -= magnitude
	}
	if k.Down {
		pitch += magnitude
	}
	if k.Left {
		roll -= magnitude
	}
	if k.Right {
		roll += magnitude
	}
	return pitch, roll
}
