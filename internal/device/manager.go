// ABOUTME: Device detection and device-context construction.
// ABOUTME: Maps user agents and client hints to a typed device context.

package device

import (
	"log/slog"
	"strings"
	"time"
)

// Context is the resolved device context attached to a session. It carries
// the capability profile and the adaptation hints derived from the device
// type.
type Context struct {
	DeviceID   string            `json:"device_id"`
	Type       Type              `json:"type"`
	Profile    CapabilityProfile `json:"profile"`
	Hints      OptimizationHints `json:"hints"`
	UserAgent  string            `json:"user_agent,omitempty"`
	DetectedAt time.Time         `json:"detected_at"`
}

// Manager resolves device types and builds device contexts. It holds no
// mutable state; the profile table is static.
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a Manager. Pass nil logger for default.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "device")}
}

// userAgentMarkers maps substrings to device types. Order matters: more
// specific classes are checked before the generic mobile/desktop buckets.
var userAgentMarkers = []struct {
	marker string
	t      Type
}{
	{"carplay", Car},
	{"android auto", Car},
	{"qnx", Car},
	{"watch", Watch},
	{"wearos", Watch},
	{"smarttv", TV},
	{"smart-tv", TV},
	{"appletv", TV},
	{"tizen", TV},
	{"echo", SmartSpeaker},
	{"homepod", SmartSpeaker},
	{"alexa", SmartSpeaker},
	{"ipad", Tablet},
	{"tablet", Tablet},
	{"iphone", Mobile},
	{"android", Mobile},
	{"mobile", Mobile},
	{"macintosh", Desktop},
	{"windows", Desktop},
	{"x11", Desktop},
	{"linux", Desktop},
}

// DetectType resolves a device type from a user agent string and optional
// client-supplied info. An explicit "device_type" entry in info wins over
// user agent sniffing.
func (m *Manager) DetectType(userAgent string, info map[string]string) Type {
	if declared, ok := info["device_type"]; ok {
		t := Type(strings.ToLower(declared))
		if _, known := profiles[t]; known {
			return t
		}
		m.logger.Debug("unrecognized declared device type", "declared", declared)
	}

	ua := strings.ToLower(userAgent)
	for _, entry := range userAgentMarkers {
		if strings.Contains(ua, entry.marker) {
			return entry.t
		}
	}
	return Unknown
}

// CreateContext builds a device context for a device ID. If deviceType is
// empty it is detected from the user agent and info hints.
func (m *Manager) CreateContext(deviceID string, deviceType Type, userAgent string, info map[string]string) *Context {
	if deviceType == "" {
		deviceType = m.DetectType(userAgent, info)
	}
	if _, known := profiles[deviceType]; !known {
		deviceType = Unknown
	}

	ctx := &Context{
		DeviceID:   deviceID,
		Type:       deviceType,
		Profile:    Profile(deviceType),
		Hints:      Hints(deviceType),
		UserAgent:  userAgent,
		DetectedAt: time.Now(),
	}
	m.logger.Debug("device context created",
		"device_id", deviceID,
		"type", deviceType,
		"response_length", ctx.Hints.ResponseLength)
	return ctx
}
