package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally-node/internal/domain"
)

func TestValidatePermissionsAllowed(t *testing.T) {
	m := domain.PluginManifest{
		Name:        "tally",
		Permissions: []string{PermNetwork, PermAudit},
	}
	assert.NoError(t, ValidatePermissions(m, []string{PermNetwork, PermAudit, "exec"}, nil))
}

func TestValidatePermissionsDenied(t *testing.T) {
	m := domain.PluginManifest{
		Name:        "tally",
		Permissions: []string{PermAudit},
	}
	err := ValidatePermissions(m, nil, []string{PermAudit})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, domain.CodePermissionDenied, domain.ErrorCodeOf(err))
}

func TestValidatePermissionsUnlisted(t *testing.T) {
	m := domain.PluginManifest{
		Name:        "tally",
		Permissions: []string{PermNetwork},
	}
	err := ValidatePermissions(m, []string{PermAudit}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "unlisted")
}

func TestValidatePermissionsNoRestrictions(t *testing.T) {
	m := domain.PluginManifest{Name: "tally", Permissions: []string{"anything"}}
	assert.NoError(t, ValidatePermissions(m, nil, nil))
	assert.NoError(t, ValidatePermissions(domain.PluginManifest{Name: "bare"}, []string{"read"}, []string{"exec"}))
}

func TestValidatePermissions_DenyTakesPrecedence(t *testing.T) {
	m := domain.PluginManifest{
		Name:        "my-plugin",
		Permissions: []string{"read", "exec"},
	}
	err := ValidatePermissions(m, []string{"exec", "read"}, []string{"exec"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "denied")
	assert.Contains(t, err.Error(), "my-plugin")
	assert.Contains(t, err.Error(), `"exec"`)
}
