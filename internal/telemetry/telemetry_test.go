package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Disabled(t *testing.T) {
	tel, err := Setup(context.Background(), Config{Enabled: false}, nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetup_EnabledRequiresEndpoint(t *testing.T) {
	_, err := Setup(context.Background(), Config{Enabled: true}, nil)
	assert.Error(t, err)
}
