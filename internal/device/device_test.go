// ABOUTME: Tests for device detection, capability profiles, and adaptation.
// ABOUTME: Verifies deterministic truncation, stripping, and safety filtering.

package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectType(t *testing.T) {
	m := NewManager(nil)

	tests := []struct {
		name      string
		userAgent string
		info      map[string]string
		want      Type
	}{
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)", nil, Mobile},
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile", nil, Mobile},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0)", nil, Tablet},
		{"mac desktop", "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", nil, Desktop},
		{"windows desktop", "Mozilla/5.0 (Windows NT 10.0; Win64)", nil, Desktop},
		{"watch", "AssistantApp/2.1 (Apple Watch; watchOS 11)", nil, Watch},
		{"carplay", "AssistantApp/2.1 (CarPlay; iOS 18)", nil, Car},
		{"smart speaker", "EchoDevice/1.0", nil, SmartSpeaker},
		{"tv", "Mozilla/5.0 (SmartTV; Tizen 7.0)", nil, TV},
		{"empty", "", nil, Unknown},
		{"declared wins", "Mozilla/5.0 (Windows NT 10.0)", map[string]string{"device_type": "watch"}, Watch},
		{"bad declaration falls back", "Mozilla/5.0 (Windows NT 10.0)", map[string]string{"device_type": "toaster"}, Desktop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.DetectType(tt.userAgent, tt.info))
		})
	}
}

func TestCreateContext_AttachesProfileAndHints(t *testing.T) {
	m := NewManager(nil)

	dc := m.CreateContext("dev-1", Watch, "", nil)
	require.NotNil(t, dc)
	assert.Equal(t, Watch, dc.Type)
	assert.Equal(t, "tiny", dc.Profile.ScreenSize)
	assert.Equal(t, "very_short", dc.Hints.ResponseLength)
	assert.True(t, dc.Hints.VoicePreferred)

	// Unknown type falls back to the Unknown profile.
	dc = m.CreateContext("dev-2", Type("hologram"), "", nil)
	assert.Equal(t, Unknown, dc.Type)
}

func TestAdaptResponse_WatchTruncation(t *testing.T) {
	m := NewManager(nil)
	dc := m.CreateContext("w1", Watch, "", nil)

	long := strings.Repeat("the quick brown fox ", 10) // 200 chars
	got := m.AdaptResponse(long, dc)

	assert.LessOrEqual(t, len([]rune(got)), 50)
	assert.True(t, strings.HasSuffix(got, "..."), "must end in ellipsis, got %q", got)

	// Determinism: same input, same output.
	assert.Equal(t, got, m.AdaptResponse(long, dc))
}

func TestAdaptResponse_ShortLeavesShortInputAlone(t *testing.T) {
	m := NewManager(nil)
	dc := m.CreateContext("m1", Mobile, "", nil)

	assert.Equal(t, "brief answer", m.AdaptResponse("brief answer", dc))

	long := strings.Repeat("word ", 60)
	got := m.AdaptResponse(long, dc)
	assert.LessOrEqual(t, len([]rune(got)), 150)
}

func TestAdaptResponse_SafetyFiltering(t *testing.T) {
	m := NewManager(nil)
	dc := m.CreateContext("c1", Car, "", nil)

	got := m.AdaptResponse("This is urgent, reply now!", dc)
	assert.NotContains(t, strings.ToLower(got), "urgent")
	assert.NotContains(t, got, " now!")
	assert.Contains(t, got, "soon!")
}

func TestAdaptResponse_AudioOnlyStripsMarkdown(t *testing.T) {
	m := NewManager(nil)
	dc := m.CreateContext("s1", SmartSpeaker, "", nil)

	got := m.AdaptResponse("Here is **bold** and a [link](https://example.com).", dc)
	assert.NotContains(t, got, "**")
	assert.NotContains(t, got, "](")
	assert.Contains(t, got, "bold")
	assert.Contains(t, got, "link")
}

func TestStripRichText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text stays", "plain text stays"},
		{"# Heading\n\nbody", "Heading body"},
		{"*emphasis* and `code`", "emphasis and code"},
		{"- item one\n- item two", "item one item two"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripRichText(tt.in), "input %q", tt.in)
	}
}

func TestProfileTableCoversAllTypes(t *testing.T) {
	for _, typ := range AllTypes() {
		p := Profile(typ)
		assert.NotEmpty(t, p.InputMethods, "type %s has no input methods", typ)
		h := Hints(typ)
		assert.NotEmpty(t, h.ResponseLength, "type %s has no response length", typ)
	}
}
