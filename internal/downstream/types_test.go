package downstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControlNameRoundTrip(t *testing.T) {
	cn := ControlName("weather", "get_forecast")
	assert.Equal(t, "weather-get_forecast", cn)

	server, tool, ok := SplitControlName(cn)
	assert.True(t, ok)
	assert.Equal(t, "weather", server)
	assert.Equal(t, "get_forecast", tool)
}

func TestSplitControlName_NoSeparator(t *testing.T) {
	_, _, ok := SplitControlName("notacontrolname")
	assert.False(t, ok)
}

func TestServerSpecValidate_RejectsReservedSeparatorInName(t *testing.T) {
	spec := ServerSpec{Name: "weather-api", Transport: TransportStdio, Command: "weatherd"}
	err := spec.Validate()
	assert.Error(t, err)
}

func TestServerSpecValidate_RequiresCommandForStdio(t *testing.T) {
	spec := ServerSpec{Name: "weather", Transport: TransportStdio}
	assert.Error(t, spec.Validate())
}

func TestServerSpecValidate_RequiresURLForSSE(t *testing.T) {
	spec := ServerSpec{Name: "weather", Transport: TransportSSE}
	assert.Error(t, spec.Validate())
}

func TestServerSpecValidate_OK(t *testing.T) {
	spec := ServerSpec{Name: "weather", Transport: TransportStdio, Command: "weatherd"}
	assert.NoError(t, spec.Validate())
}
