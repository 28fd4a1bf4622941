package plugin

import (
	"fmt"

	"tally-node/internal/domain"
)

// Permissions a plugin may declare in its manifest.
const (
	PermNetwork = "network" // outbound calls to a remote API
	PermAudit   = "audit"   // writes to the host's audit log
)

// ValidatePermissions checks that every permission declared by the manifest
// is allowed and none are denied. Deny wins over allow.
func ValidatePermissions(manifest domain.PluginManifest, allowed, denied []string) error {
	denySet := make(map[string]bool, len(denied))
	for _, d := range denied {
		denySet[d] = true
	}
	allowSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowSet[a] = true
	}

	for _, perm := range manifest.Permissions {
		if denySet[perm] {
			return fmt.Errorf("%w: plugin %q requests denied permission %q",
				domain.ErrPermissionDenied, manifest.Name, perm)
		}
		// An empty allow list permits anything not denied.
		if len(allowSet) > 0 && !allowSet[perm] {
			return fmt.Errorf("%w: plugin %q requests unlisted permission %q",
				domain.ErrPermissionDenied, manifest.Name, perm)
		}
	}
	return nil
}
