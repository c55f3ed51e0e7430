// Package weather maps provider condition codes to app weather categories and
// the score each category is worth.
package weather

// Category is the app-level weather bucket recorded with each location log.
type Category string

const (
	Thunderstorm Category = "thunderstorm"
	Rainy        Category = "rainy"
	Snowy        Category = "snowy"
	Stormy       Category = "stormy"
	Sunny        Category = "sunny"
	Cloudy       Category = "cloudy"
	Unknown      Category = "unknown"
)

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{Thunderstorm, Rainy, Snowy, Stormy, Sunny, Cloudy, Unknown}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case Thunderstorm, Rainy, Snowy, Stormy, Sunny, Cloudy, Unknown:
		return true
	default:
		return false
	}
}

// Classify converts an OpenWeatherMap condition id into a Category.
// See https://openweathermap.org/weather-conditions for the code groups.
//   - 2xx thunderstorm
//   - 3xx-5xx drizzle and rain
//   - 6xx snow
//   - 7xx atmosphere (mist, dust, squalls, tornado)
//   - 800 clear sky, 80x clouds
func Classify(code int) Category {
	switch {
	case code >= 200 && code < 300:
		return Thunderstorm
	case code >= 300 && code < 600:
		return Rainy
	case code >= 600 && code < 700:
		return Snowy
	case code >= 700 && code < 800:
		return Stormy
	case code == 800:
		return Sunny
	case code > 800:
		return Cloudy
	default:
		return Unknown
	}
}
