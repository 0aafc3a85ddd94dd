package methods

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// HDMS 经纬度点格式化为度分秒，如 "39° 15′ S 35° 30′ E"
func HDMS(p orb.Point) string {
	return degreesToHDMS("NS", p[1]) + " " + degreesToHDMS("EW", p[0])
}

func degreesToHDMS(hemispheres string, degrees float64) string {
	normalized := math.Mod(math.Mod(degrees+180, 360)+360, 360) - 180
	x := math.Abs(3600 * normalized)
	deg := math.Floor(x / 3600)
	min := math.Floor((x - deg*3600) / 60)
	sec := math.Round(x - deg*3600 - min*60)
	if sec >= 60 {
		sec = 0
		min++
	}
	if min >= 60 {
		min = 0
		deg++
	}

	out := fmt.Sprintf("%d°", int(deg))
	if min != 0 || sec != 0 {
		out += fmt.Sprintf(" %02d′", int(min))
	}
	if sec != 0 {
		out += fmt.Sprintf(" %02d″", int(sec))
	}
	if normalized != 0 {
		h := hemispheres[0]
		if normalized < 0 {
			h = hemispheres[1]
		}
		out += " " + string(h)
	}
	return out
}
