package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_BundleWithOverride(t *testing.T) {
	t.Setenv(EnvBundle, `{"ASANA_API_KEY": "from-bundle", "GATEWAY_API_TOKEN": "gw-token"}`)
	t.Setenv(KeyAsanaAPIKey, "from-env")

	bundle, err := FromEnv()
	require.NoError(t, err)

	got, err := bundle.Get(KeyAsanaAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-env", got, "individual variables win over the bundle")

	got, err = bundle.Get(KeyGatewayToken)
	require.NoError(t, err)
	assert.Equal(t, "gw-token", got)
}

func TestFromEnv_MalformedBundle(t *testing.T) {
	t.Setenv(EnvBundle, "{not json")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestGet_MissingNamesKeyOnly(t *testing.T) {
	bundle := Bundle{"PRESENT": "secret-value"}

	_, err := bundle.Get("ABSENT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ABSENT")
	assert.NotContains(t, err.Error(), "secret-value")
}

func TestAssigneeAPIKey_Fallback(t *testing.T) {
	bundle := Bundle{
		KeyAsanaAPIKey:           "shared",
		"4001_" + KeyAsanaAPIKey: "personal",
	}

	got, err := bundle.AssigneeAPIKey("4001")
	require.NoError(t, err)
	assert.Equal(t, "personal", got)

	got, err = bundle.AssigneeAPIKey("9999")
	require.NoError(t, err)
	assert.Equal(t, "shared", got, "missing personal key falls back to the shared key")
}
