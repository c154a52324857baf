// ABOUTME: Device type enum and the static capability profile table.
// ABOUTME: Profiles are immutable and keyed by device type.

package device

// Type identifies a class of client device.
type Type string

const (
	Mobile       Type = "mobile"
	Desktop      Type = "desktop"
	Tablet       Type = "tablet"
	Watch        Type = "watch"
	TV           Type = "tv"
	Car          Type = "car"
	SmartSpeaker Type = "smart_speaker"
	Unknown      Type = "unknown"
)

// CapabilityProfile describes what a device class can do. Profiles are
// static; callers receive copies and may not mutate shared state.
type CapabilityProfile struct {
	HasScreen                bool     `json:"has_screen"`
	HasKeyboard              bool     `json:"has_keyboard"`
	HasMicrophone            bool     `json:"has_microphone"`
	HasTouch                 bool     `json:"has_touch"`
	HasVoiceInput            bool     `json:"has_voice_input"`
	HasHaptic                bool     `json:"has_haptic"`
	ScreenSize               string   `json:"screen_size"` // none, tiny, small, medium, large
	InputMethods             []string `json:"input_methods"`
	PreferredInteractionMode string   `json:"preferred_interaction_mode"` // text, voice, mixed
	SupportsRichContent      bool     `json:"supports_rich_content"`
	SupportsNotifications    bool     `json:"supports_notifications"`
}

// OptimizationHints drive response adaptation for a device context.
type OptimizationHints struct {
	ResponseLength string `json:"response_length"` // full, short, very_short
	AudioOnly      bool   `json:"audio_only"`
	SafetyFiltered bool   `json:"safety_filtered"`
	VoicePreferred bool   `json:"voice_preferred"`
}

// profiles is the static capability table, loaded once at init.
var profiles = map[Type]CapabilityProfile{
	Mobile: {
		HasScreen: true, HasKeyboard: true, HasMicrophone: true,
		HasTouch: true, HasVoiceInput: true, HasHaptic: true,
		ScreenSize:               "small",
		InputMethods:             []string{"touch", "voice", "keyboard"},
		PreferredInteractionMode: "mixed",
		SupportsRichContent:      true,
		SupportsNotifications:    true,
	},
	Desktop: {
		HasScreen: true, HasKeyboard: true, HasMicrophone: true,
		ScreenSize:               "large",
		InputMethods:             []string{"keyboard", "mouse"},
		PreferredInteractionMode: "text",
		SupportsRichContent:      true,
		SupportsNotifications:    true,
	},
	Tablet: {
		HasScreen: true, HasKeyboard: true, HasMicrophone: true,
		HasTouch: true, HasVoiceInput: true,
		ScreenSize:               "medium",
		InputMethods:             []string{"touch", "voice", "keyboard"},
		PreferredInteractionMode: "mixed",
		SupportsRichContent:      true,
		SupportsNotifications:    true,
	},
	Watch: {
		HasScreen: true, HasMicrophone: true, HasTouch: true,
		HasVoiceInput: true, HasHaptic: true,
		ScreenSize:               "tiny",
		InputMethods:             []string{"touch", "voice"},
		PreferredInteractionMode: "voice",
		SupportsNotifications:    true,
	},
	TV: {
		HasScreen: true, HasMicrophone: true, HasVoiceInput: true,
		ScreenSize:               "large",
		InputMethods:             []string{"remote", "voice"},
		PreferredInteractionMode: "voice",
		SupportsRichContent:      true,
	},
	Car: {
		HasScreen: true, HasMicrophone: true, HasVoiceInput: true,
		HasTouch:                 true,
		ScreenSize:               "medium",
		InputMethods:             []string{"voice", "touch"},
		PreferredInteractionMode: "voice",
	},
	SmartSpeaker: {
		HasMicrophone: true, HasVoiceInput: true,
		ScreenSize:               "none",
		InputMethods:             []string{"voice"},
		PreferredInteractionMode: "voice",
	},
	Unknown: {
		HasScreen:                true,
		ScreenSize:               "medium",
		InputMethods:             []string{"text"},
		PreferredInteractionMode: "text",
		SupportsRichContent:      true,
	},
}

// hints is the static optimization-hint table derived from device class.
var hints = map[Type]OptimizationHints{
	Mobile:       {ResponseLength: "short"},
	Desktop:      {ResponseLength: "full"},
	Tablet:       {ResponseLength: "full"},
	Watch:        {ResponseLength: "very_short", VoicePreferred: true},
	TV:           {ResponseLength: "short", VoicePreferred: true},
	Car:          {ResponseLength: "short", SafetyFiltered: true, VoicePreferred: true},
	SmartSpeaker: {ResponseLength: "short", AudioOnly: true, VoicePreferred: true},
	Unknown:      {ResponseLength: "full"},
}

// Profile returns the capability profile for a device type. Unknown types
// get the Unknown profile.
func Profile(t Type) CapabilityProfile {
	if p, ok := profiles[t]; ok {
		return p
	}
	return profiles[Unknown]
}

// Hints returns the optimization hints for a device type.
func Hints(t Type) OptimizationHints {
	if h, ok := hints[t]; ok {
		return h
	}
	return hints[Unknown]
}

// AllTypes lists the known device types in a stable order.
func AllTypes() []Type {
	return []Type{Mobile, Desktop, Tablet, Watch, TV, Car, SmartSpeaker, Unknown}
}
