package geo

import "math"

// Web Mercator helpers normalised to the unit square: x and y run from 0 to 1,
// y grows southwards.

// MercatorX projects a longitude.
func MercatorX(lon float64) float64 {
	return lon/360 + 0.5
}

// MercatorY projects a latitude, clamping the poles to the square's edges.
func MercatorY(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	switch {
	case y < 0:
		return 0
	case y > 1:
		return 1
	}
	return y
}

// UnprojectX is the inverse of MercatorX.
func UnprojectX(x float64) float64 {
	return (x - 0.5) * 360
}

// UnprojectY is the inverse of MercatorY.
func UnprojectY(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}
