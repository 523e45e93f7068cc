package domain

import (
	"encoding/json"
	"testing"
)

func TestUpgradeConfigCurrentIsNoop(t *testing.T) {
	_, upgraded, err := UpgradeConfig(`{"schemaVersion":2,"slug":"acme"}`)
	if err != nil {
		t.Fatal(err)
	}
	if upgraded {
		t.Fatal("current config must not be upgraded")
	}
}

func TestUpgradeConfigFromV1(t *testing.T) {
	// v1 blobs carried no schemaVersion and named the slug "subdomain".
	out, upgraded, err := UpgradeConfig(`{"subdomain":"acme","name":"Acme"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !upgraded {
		t.Fatal("expected upgrade")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		t.Fatal(err)
	}
	if raw["slug"] != "acme" {
		t.Errorf("slug = %v", raw["slug"])
	}
	if _, ok := raw["subdomain"]; ok {
		t.Error("subdomain must be removed")
	}
	if v, _ := raw["schemaVersion"].(float64); int64(v) != CurrentSchemaVersion {
		t.Errorf("schemaVersion = %v", raw["schemaVersion"])
	}
	if raw["name"] != "Acme" {
		t.Errorf("name = %v", raw["name"])
	}
}

func TestUpgradeConfigMalformed(t *testing.T) {
	if _, _, err := UpgradeConfig("{oops"); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpgradeConfigUnknownVersion(t *testing.T) {
	if _, _, err := UpgradeConfig(`{"schemaVersion":-1}`); err == nil {
		t.Fatal("expected error for version without an upgrade step")
	}
}
