package model

import "testing"

func TestCapabilitySet_Has_exact(t *testing.T) {
	cs := CapabilitySet{
		"accounts:list":   true,
		"accounts:update": true,
	}
	if !cs.Has("accounts:list") {
		t.Error("Has(accounts:list) = false, want true")
	}
	if cs.Has("accounts:delete") {
		t.Error("Has(accounts:delete) = true, want false")
	}
}

func TestCapabilitySet_Has_wildcard_star(t *testing.T) {
	cs := CapabilitySet{"*": true}
	if !cs.Has("accounts:list") {
		t.Error("wildcard * should match accounts:list")
	}
	if !cs.Has("anything") {
		t.Error("wildcard * should match anything")
	}
}

func TestCapabilitySet_Has_wildcard_namespace(t *testing.T) {
	cs := CapabilitySet{"features:*": true}
	if !cs.Has("features:list") {
		t.Error("features:* should match features:list")
	}
	if !cs.Has("features:autoops:update") {
		t.Error("features:* should match features:autoops:update")
	}
	if cs.Has("goals:list") {
		t.Error("features:* should not match goals:list")
	}
}

func TestCapabilitySet_Has_wildcard_nested(t *testing.T) {
	cs := CapabilitySet{"features:autoops:*": true}
	if !cs.Has("features:autoops:create") {
		t.Error("features:autoops:* should match features:autoops:create")
	}
	if cs.Has("features:update") {
		t.Error("features:autoops:* should not match features:update")
	}
}

func TestCapabilitySet_Has_empty(t *testing.T) {
	cs := CapabilitySet{}
	if cs.Has("accounts:list") {
		t.Error("empty set should not match anything")
	}
}

func TestCapabilitySet_Has_nil(t *testing.T) {
	var cs CapabilitySet
	if cs.Has("accounts:list") {
		t.Error("nil set should not match anything")
	}
}

func TestCapabilitySet_HasAll(t *testing.T) {
	cs := CapabilitySet{
		"accounts:list":   true,
		"accounts:update": true,
	}
	if !cs.HasAll("accounts:list", "accounts:update") {
		t.Error("HasAll should be true when all present")
	}
	if cs.HasAll("accounts:list", "accounts:delete") {
		t.Error("HasAll should be false when one missing")
	}
}

func TestCapabilitySet_HasAll_empty(t *testing.T) {
	cs := CapabilitySet{"accounts:list": true}
	if !cs.HasAll() {
		t.Error("HasAll with no args should be true")
	}
}

func TestCapabilitySet_HasAny(t *testing.T) {
	cs := CapabilitySet{"accounts:list": true}
	if !cs.HasAny("accounts:delete", "accounts:list") {
		t.Error("HasAny should be true when at least one present")
	}
	if cs.HasAny("accounts:delete", "goals:list") {
		t.Error("HasAny should be false when none present")
	}
}

func TestMatchWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		cap     string
		want    bool
	}{
		{"*", "accounts:list", true},
		{"accounts:*", "accounts:list", true},
		{"accounts:*", "goals:list", false},
		{"features:autoops:*", "features:autoops:delete", true},
		{"accounts:list", "accounts:list", false}, // exact match handled by map lookup
		{"accounts", "accounts:list", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"_vs_"+tt.cap, func(t *testing.T) {
			if got := matchWildcard(tt.pattern, tt.cap); got != tt.want {
				t.Errorf("matchWildcard(%q, %q) = %v, want %v", tt.pattern, tt.cap, got, tt.want)
			}
		})
	}
}
