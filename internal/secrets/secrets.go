// Package secrets resolves credentials from the environment.
//
// Deployments inject the whole bundle as one JSON document (the shape the
// original secret-manager entry used), or as individual variables which
// take precedence. Nothing here touches disk or the network.
package secrets

import (
	"encoding/json"
	"fmt"
	"os"
)

// Bundle keys.
const (
	KeyAsanaAPIKey       = "ASANA_API_KEY"
	KeyBitbucketClientID = "BITBUCKET_CLIENT_ID"
	KeyBitbucketSecret   = "BITBUCKET_SECRET"
	KeyGatewayToken      = "GATEWAY_API_TOKEN"
)

// EnvBundle names the variable holding the JSON credential bundle.
const EnvBundle = "JOBS_SECRET"

// Bundle is a flat credential map.
type Bundle map[string]string

// FromEnv builds a bundle from JOBS_SECRET (JSON object of strings) with
// individual environment variables layered on top.
func FromEnv() (Bundle, error) {
	bundle := Bundle{}

	if raw, ok := os.LookupEnv(EnvBundle); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvBundle, err)
		}
	}

	for _, key := range []string{KeyAsanaAPIKey, KeyBitbucketClientID, KeyBitbucketSecret, KeyGatewayToken} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			bundle[key] = v
		}
	}
	return bundle, nil
}

// Get returns a credential, erroring when absent. Error text names the key
// only - values never reach logs.
func (b Bundle) Get(key string) (string, error) {
	v, ok := b[key]
	if !ok || v == "" {
		return "", fmt.Errorf("missing secret %s", key)
	}
	return v, nil
}

// AssigneeAPIKey returns the per-assignee Asana key used by the personal
// PR boards ("{assignee_gid}_ASANA_API_KEY"), falling back to the shared
// key when no personal one is configured.
func (b Bundle) AssigneeAPIKey(assigneeGID string) (string, error) {
	if v, ok := b[assigneeGID+"_"+KeyAsanaAPIKey]; ok && v != "" {
		return v, nil
	}
	return b.Get(KeyAsanaAPIKey)
}
