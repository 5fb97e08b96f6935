package go2fa

import "github.com/MrEthical07/go2fa/profile"

const (
	scoreBase        = 60
	scoreEnabled     = 30
	scoreMultiDevice = 10
	scoreMax         = 100
)

// SecurityScore rates a profile for display. It has no side effects.
func SecurityScore(p profile.Profile) int {
	score := scoreBase
	if p.Enabled {
		score += scoreEnabled
	}
	if p.DeviceCount > 1 {
		score += scoreMultiDevice
	}
	if score > scoreMax {
		score = scoreMax
	}
	return score
}
