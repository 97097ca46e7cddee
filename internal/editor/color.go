package editor

import (
	"time"

	"github.com/fogleman/ease"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	cueSaturation = 0.65
	cueValue      = 0.85
	enteredValue  = 1.0

	// flashDuration is how long a freshly entered cue fades from its flash
	// colour to its entered colour.
	flashDuration = 400 * time.Millisecond
	flashStrength = 0.6
)

// HueColor returns the display colour of a cue hue as #rrggbb. Entered cues
// use a brighter variant.
func HueColor(hue float64, entered bool) string {
	return hueColor(hue, entered).Hex()
}

func hueColor(hue float64, entered bool) colorful.Color {
	v := cueValue
	if entered {
		v = enteredValue
	}
	return colorful.Hsv(hue, cueSaturation, v)
}

// flashColor blends the entered colour toward white, easing out over
// flashDuration after the cue was entered.
func flashColor(hue float64, since time.Duration) string {
	base := hueColor(hue, true)
	if since < 0 || since >= flashDuration {
		return base.Hex()
	}
	progress := float64(since) / float64(flashDuration)
	amount := flashStrength * (1 - ease.OutQuad(progress))
	white := colorful.Color{R: 1, G: 1, B: 1}
	return base.BlendRgb(white, amount).Clamped().Hex()
}
