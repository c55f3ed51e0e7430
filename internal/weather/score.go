package weather

// deltas is the score movement applied for one logged location per category.
// Snow is rare enough to be worth more than sun.
var deltas = map[Category]float64{
	Sunny:        1,
	Cloudy:       0.5,
	Rainy:        -1,
	Snowy:        2,
	Thunderstorm: -3,
	Stormy:       -2,
	Unknown:      0,
}

// Delta returns the score change for a category. Categories outside the
// table contribute nothing.
func Delta(c Category) float64 {
	return deltas[c]
}
