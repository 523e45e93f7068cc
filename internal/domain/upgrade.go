package domain

import (
	"encoding/json"
	"fmt"
)

// CurrentSchemaVersion is the config schema version this build writes.
// Stored configs behind this are upgraded lazily on read.
const CurrentSchemaVersion = 2

// upgrade steps keyed by the schema version they upgrade FROM. Each step
// mutates the raw config map in place.
var upgradeSteps = map[int64]func(map[string]any){
	// v1 stored the subdomain under "subdomain" and had no schemaVersion
	// attribute at all.
	1: func(raw map[string]any) {
		if sub, ok := raw["subdomain"]; ok {
			if _, exists := raw["slug"]; !exists {
				raw["slug"] = sub
			}
			delete(raw, "subdomain")
		}
	},
}

// UpgradeConfig brings a stored config blob to the current schema version.
// It reports upgraded=false when the blob is already current. A blob that
// cannot be parsed is an integrity error.
func UpgradeConfig(configJSON string) (upgradedJSON string, upgraded bool, err error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(configJSON), &raw); err != nil {
		return "", false, fmt.Errorf("decode config for upgrade: %w", err)
	}

	version := int64(1)
	if v, ok := raw["schemaVersion"].(float64); ok {
		version = int64(v)
	}
	if version >= CurrentSchemaVersion {
		return "", false, nil
	}

	for ; version < CurrentSchemaVersion; version++ {
		step, ok := upgradeSteps[version]
		if !ok {
			return "", false, fmt.Errorf("no upgrade step from config schema version %d", version)
		}
		step(raw)
	}
	raw["schemaVersion"] = CurrentSchemaVersion

	data, err := json.Marshal(raw)
	if err != nil {
		return "", false, fmt.Errorf("encode upgraded config: %w", err)
	}
	return string(data), true, nil
}
