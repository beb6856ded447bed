package models

import (
	"reflect"
	"testing"
)

func sampleFields() FieldSet {
	return FieldSet{
		"balances": map[string]interface{}{
			"source": 600.0,
			"dest":   0.0,
		},
		"profile": map[string]interface{}{
			"email": "u1@example.com",
		},
		"active": true,
	}
}

func TestFieldSetGet(t *testing.T) {
	fields := sampleFields()

	tests := []struct {
		name   string
		path   string
		want   interface{}
		wantOK bool
	}{
		{"nested value", "balances.source", 600.0, true},
		{"top-level value", "active", true, true},
		{"missing leaf", "balances.pending", nil, false},
		{"missing branch", "settings.theme", nil, false},
		{"path through scalar", "active.nested", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fields.Get(tt.path)
			if ok != tt.wantOK || !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Get(%q) = (%v, %v), want (%v, %v)", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFieldSetGet_Nil(t *testing.T) {
	var fields FieldSet
	if _, ok := fields.Get("anything"); ok {
		t.Error("Get on a nil field set should report absence")
	}
}

func TestFieldSetSet_CreatesIntermediates(t *testing.T) {
	fields := FieldSet{}
	fields.Set("points.breakdown.bonus", 25.0)

	if got, _ := fields.Float("points.breakdown.bonus"); got != 25 {
		t.Errorf("points.breakdown.bonus = %v, want 25", got)
	}
}

func TestFieldSetSet_ReplacesScalarIntermediate(t *testing.T) {
	fields := FieldSet{"flags": true}
	fields.Set("flags.migrated", true)

	if !fields.Bool("flags.migrated") {
		t.Error("flags.migrated should be true after replacing the scalar")
	}
}

func TestFieldSetFloat(t *testing.T) {
	fields := FieldSet{
		"f64":  600.0,
		"int":  42,
		"text": "not a number",
		"null": nil,
	}

	if got, ok := fields.Float("f64"); !ok || got != 600 {
		t.Errorf("Float(f64) = (%v, %v)", got, ok)
	}
	if got, ok := fields.Float("int"); !ok || got != 42 {
		t.Errorf("Float(int) = (%v, %v)", got, ok)
	}
	if _, ok := fields.Float("text"); ok {
		t.Error("Float(text) should not be ok")
	}
	if _, ok := fields.Float("null"); ok {
		t.Error("Float(null) should not be ok")
	}
	if _, ok := fields.Float("missing"); ok {
		t.Error("Float(missing) should not be ok")
	}
}

func TestFieldSetApply_TouchesOnlyNamedPaths(t *testing.T) {
	fields := sampleFields()

	fields.Apply(Patch{
		"balances.source": 100.0,
		"balances.dest":   500.0,
	})

	if got, _ := fields.Float("balances.source"); got != 100 {
		t.Errorf("balances.source = %v, want 100", got)
	}
	if got, _ := fields.Float("balances.dest"); got != 500 {
		t.Errorf("balances.dest = %v, want 500", got)
	}
	// Everything outside the patch is untouched.
	if email, _ := fields.Get("profile.email"); email != "u1@example.com" {
		t.Errorf("profile.email = %v, want unchanged", email)
	}
	if !fields.Bool("active") {
		t.Error("active should be unchanged")
	}
}

func TestFieldSetPick(t *testing.T) {
	fields := sampleFields()

	snapshot := fields.Pick("balances.source", "flags.migrated")

	if snapshot["balances.source"] != 600.0 {
		t.Errorf("snapshot balances.source = %v, want 600", snapshot["balances.source"])
	}
	// An absent path is captured as an explicit nil so a later restore
	// clears whatever the migration wrote there.
	if value, ok := snapshot["flags.migrated"]; !ok || value != nil {
		t.Errorf("snapshot flags.migrated = (%v, %v), want explicit nil", value, ok)
	}
}

func TestFieldSetPickApplyRoundTrip(t *testing.T) {
	fields := sampleFields()
	patch := Patch{
		"balances.source": 100.0,
		"balances.dest":   500.0,
		"flags.migrated":  true,
	}

	snapshot := fields.Pick(patch.Paths()...)
	fields.Apply(patch)
	fields.Apply(snapshot)

	if got, _ := fields.Float("balances.source"); got != 600 {
		t.Errorf("balances.source = %v, want 600", got)
	}
	if got, _ := fields.Float("balances.dest"); got != 0 {
		t.Errorf("balances.dest = %v, want 0", got)
	}
	if fields.Has("flags.migrated") {
		t.Error("flags.migrated should be restored to absent (nil)")
	}
}

func TestFieldSetClone(t *testing.T) {
	fields := sampleFields()
	copied := fields.Clone()

	copied.Set("balances.source", 0.0)
	copied.Set("profile.email", "other@example.com")

	if got, _ := fields.Float("balances.source"); got != 600 {
		t.Errorf("original balances.source = %v, want 600 after clone mutation", got)
	}
	if email, _ := fields.Get("profile.email"); email != "u1@example.com" {
		t.Errorf("original profile.email = %v, want unchanged", email)
	}
}

func TestPatchPaths_Sorted(t *testing.T) {
	patch := Patch{
		"points.total":   175.0,
		"balances.dest":  500.0,
		"flags.migrated": true,
	}

	want := []string{"balances.dest", "flags.migrated", "points.total"}
	if got := patch.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
}
