package domain

// Kind identifies which store a preset originates from.
type Kind int

const (
	// KindBuiltIn presets ship with the application and are immutable.
	KindBuiltIn Kind = iota
	// KindUser presets live in the user's preset directory.
	KindUser
	// KindInScene presets are stored as text nodes in the current scene.
	KindInScene
)

// Capabilities describes what callers may do with a preset.
type Capabilities struct {
	Writable  bool
	Deletable bool
}

// Capabilities returns the capability set attached to presets of this kind.
func (k Kind) Capabilities() Capabilities {
	switch k {
	case KindInScene:
		return Capabilities{Writable: true, Deletable: true}
	case KindUser:
		return Capabilities{Deletable: true}
	default:
		return Capabilities{}
	}
}

// String returns the label shown next to a preset.
func (k Kind) String() string {
	switch k {
	case KindBuiltIn:
		return "built-in preset"
	case KindUser:
		return "user preset"
	case KindInScene:
		return "stored in scene"
	default:
		return "unknown"
	}
}
