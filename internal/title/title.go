// Package title derives the display title for an accumulated weather score.
package title

import "github.com/solalog/solalog-server/internal/model"

// Titles shown to users.
const (
	SolarDeity  = "太陽神"
	SunnyMan    = "晴れ男"
	SunnyWoman  = "晴れ女"
	Ordinary    = "凡人"
	RainMan     = "雨男"
	RainWoman   = "雨女"
	StormCaller = "嵐を呼ぶ者"
)

// Score thresholds. All comparisons are strict, so a score of exactly 100 or
// -100 stays Ordinary.
const (
	solarDeityAbove  = 500.0
	sunnyAbove       = 100.0
	stormCallerBelow = -500.0
	rainBelow        = -100.0
)

// Resolve returns the title for a score. Gender only selects between the
// male and female wording of the sunny and rain titles; anything other than
// female uses the male wording.
func Resolve(score float64, g model.Gender) string {
	female := g == model.GenderFemale
	switch {
	case score > solarDeityAbove:
		return SolarDeity
	case score > sunnyAbove:
		if female {
			return SunnyWoman
		}
		return SunnyMan
	case score < stormCallerBelow:
		return StormCaller
	case score < rainBelow:
		if female {
			return RainWoman
		}
		return RainMan
	default:
		return Ordinary
	}
}
