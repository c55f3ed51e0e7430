package title

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/solalog/solalog-server/internal/model"
)

func TestResolve_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		g     model.Gender
		want  string
	}{
		{0, model.GenderUnset, Ordinary},
		{100, model.GenderUnset, Ordinary},
		{100.01, model.GenderUnset, SunnyMan},
		{-100, model.GenderUnset, Ordinary},
		{-100.01, model.GenderUnset, RainMan},
		{500, model.GenderUnset, SunnyMan},
		{500.01, model.GenderUnset, SolarDeity},
		{500.01, model.GenderFemale, SolarDeity},
		{-500, model.GenderFemale, RainWoman},
		{-500.01, model.GenderFemale, StormCaller},
		{-500.01, model.GenderMale, StormCaller},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.score, tt.g), "score=%v gender=%q", tt.score, tt.g)
	}
}

func TestResolve_Gendered(t *testing.T) {
	assert.Equal(t, SunnyWoman, Resolve(150, model.GenderFemale))
	assert.Equal(t, SunnyMan, Resolve(150, model.GenderMale))
	assert.Equal(t, SunnyMan, Resolve(150, model.GenderUnset))
	assert.Equal(t, SunnyMan, Resolve(150, model.GenderOther))

	assert.Equal(t, RainWoman, Resolve(-150, model.GenderFemale))
	assert.Equal(t, RainMan, Resolve(-150, model.GenderMale))
	assert.Equal(t, RainMan, Resolve(-150, model.GenderOther))
}
