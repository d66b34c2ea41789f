package scoring

import "github.com/mkells/vigil/internal/event"

// recommendationWindow bounds how far back the advice lookup reaches.
const recommendationWindow = 10

// maxRecommendations caps the advice list shown to a proctor.
const maxRecommendations = 5

// adviceRule maps a group of related event types to one line of proctor
// advice. A rule fires at most once no matter how many of its types appear.
type adviceRule struct {
	types  []event.Type
	advice string
}

var adviceRules = []adviceRule{
	{[]event.Type{event.GazeLeft, event.GazeRight}, "Student frequently looking away from screen"},
	{[]event.Type{event.MultipleFaces}, "Multiple people detected in camera view"},
	{[]event.Type{event.SpeechDetected, event.MultipleVoices}, "Audio activity detected, possible communication"},
	{[]event.Type{event.TabSwitch, event.WindowBlur}, "Student switching between applications or tabs"},
	{[]event.Type{event.CopyPaste}, "Copy-paste activity detected"},
	{[]event.Type{event.PhoneDetected}, "Mobile device detected in view"},
	{[]event.Type{event.BannedKeywords}, "Suspicious keywords detected in audio"},
}

// Recommendations derives human-readable proctor advice from the trailing
// events. Pure lookup over the last few event types; no scoring state.
func Recommendations(events []*event.Event) []string {
	start := len(events) - recommendationWindow
	if start < 0 {
		start = 0
	}
	seen := make(map[event.Type]bool, recommendationWindow)
	for _, ev := range events[start:] {
		seen[ev.Type] = true
	}

	var out []string
	for _, rule := range adviceRules {
		for _, t := range rule.types {
			if seen[t] {
				out = append(out, rule.advice)
				break
			}
		}
		if len(out) == maxRecommendations {
			break
		}
	}
	return out
}
