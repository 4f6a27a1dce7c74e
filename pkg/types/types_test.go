package types

import "testing"

func TestFingerprintNormalizesText(t *testing.T) {
	a := Query{Text: "Jane  Doe", Type: TypePerson}.Fingerprint()
	b := Query{Text: "jane doe", Type: TypePerson}.Fingerprint()
	if a != b {
		t.Errorf("expected identical fingerprints, got %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64-hex fingerprint, got %d chars", len(a))
	}
}

func TestFingerprintDistinguishesType(t *testing.T) {
	a := Query{Text: "acme", Type: TypeCompany}.Fingerprint()
	b := Query{Text: "acme", Type: TypePerson}.Fingerprint()
	if a == b {
		t.Error("type hint must be part of the fingerprint")
	}
}

func TestParseEntityType(t *testing.T) {
	cases := map[string]EntityType{
		"person":  TypePerson,
		" Company": TypeCompany,
		"GROUP":   TypeGroup,
		"asset":   TypeAsset,
		"":        TypeUnknown,
		"martian": TypeUnknown,
	}
	for raw, want := range cases {
		if got := ParseEntityType(raw); got != want {
			t.Errorf("ParseEntityType(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestClusterIDStableUnderOrderAndDuplicates(t *testing.T) {
	a := ClusterID([]string{"https://a.example/1", "https://b.example/2"})
	b := ClusterID([]string{"https://b.example/2", "https://a.example/1", "https://a.example/1"})
	if a != b {
		t.Errorf("cluster id must not depend on URL order or duplicates: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64-hex cluster id, got %d chars", len(a))
	}
}
