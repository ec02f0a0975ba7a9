package gateway

import (
	"context"
	"testing"

	"github.com/giantswarm/mcp-composer/internal/downstream"
	"github.com/giantswarm/mcp-composer/internal/kit"

	"github.com/stretchr/testify/assert"
)

func TestGateway_DisabledKit_EmptyListNoCall(t *testing.T) {
	registry := downstream.NewRegistry()
	k := kit.New("default")
	k.DisableKit()

	g := New(k, registry)
	g.Setup("http://localhost:8000")

	tools := g.ListTools(context.Background())
	assert.Empty(t, tools)

	_, err := g.CallTool(context.Background(), "weather-get_forecast", nil)
	assert.Error(t, err)
}

func TestGateway_DisableServer_CascadesToCallRejection(t *testing.T) {
	k := kit.New("default")
	k.AssignServer("weather", []string{"weather-get_forecast"})
	k.DisableServer("weather")

	registry := downstream.NewRegistry()
	g := New(k, registry)
	g.Setup("http://localhost:8000")

	tools := g.ListTools(context.Background())
	assert.Empty(t, tools)

	_, err := g.CallTool(context.Background(), "weather-get_forecast", nil)
	assert.Error(t, err)
}

func TestGateway_EnabledTool_NotListedWhileAbsentFromRegistry(t *testing.T) {
	k := kit.New("default")
	k.AssignServer("weather", []string{"weather-get_forecast"})

	registry := downstream.NewRegistry()
	g := New(k, registry)
	g.Setup("http://localhost:8000")

	// The tool isn't in the registry yet, so it must not be listed even
	// though the kit enables it.
	assert.Empty(t, g.ListTools(context.Background()))
}
