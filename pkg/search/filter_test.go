package search

import "testing"

func TestEqNe(t *testing.T) {
	fields := map[string]string{"lang": "en", "source": "wiki"}

	if !Eq("lang", "en").Match(fields) {
		t.Error("Eq should match")
	}
	if Eq("lang", "de").Match(fields) {
		t.Error("Eq should not match different value")
	}
	if Eq("missing", "en").Match(fields) {
		t.Error("Eq should not match absent field")
	}

	if !Ne("lang", "de").Match(fields) {
		t.Error("Ne should match different value")
	}
	if Ne("missing", "x").Match(fields) {
		t.Error("Ne requires the field to be present")
	}
}

func TestInExistsPrefix(t *testing.T) {
	fields := map[string]string{"lang": "en"}

	if !In("lang", "de", "en", "fr").Match(fields) {
		t.Error("In should match listed value")
	}
	if In("lang", "de", "fr").Match(fields) {
		t.Error("In should not match unlisted value")
	}
	if !Exists("lang").Match(fields) || Exists("other").Match(fields) {
		t.Error("Exists wrong")
	}
	if !HasPrefix("lang", "e").Match(fields) || HasPrefix("lang", "eng").Match(fields) {
		t.Error("HasPrefix wrong")
	}
}

func TestComposites(t *testing.T) {
	fields := map[string]string{"lang": "en", "year": "2024"}

	f := And(Eq("lang", "en"), Eq("year", "2024"))
	if !f.Match(fields) {
		t.Error("And should match")
	}
	if And(Eq("lang", "en"), Eq("year", "1999")).Match(fields) {
		t.Error("And with one failing branch should not match")
	}
	if !Or(Eq("lang", "de"), Eq("year", "2024")).Match(fields) {
		t.Error("Or should match")
	}
	if !Not(Eq("lang", "de")).Match(fields) {
		t.Error("Not should match")
	}

	// Empty conjunction matches everything, including nil metadata.
	if !And().Match(nil) {
		t.Error("And() should match nil fields")
	}
	if Or().Match(fields) {
		t.Error("Or() should match nothing")
	}
}

func TestMatchAll(t *testing.T) {
	f := MatchAll(map[string]string{"lang": "en", "source": "wiki"})

	if !f.Match(map[string]string{"lang": "en", "source": "wiki", "extra": "x"}) {
		t.Error("MatchAll should match superset")
	}
	if f.Match(map[string]string{"lang": "en"}) {
		t.Error("MatchAll should require every pair")
	}
	if !MatchAll(nil).Match(nil) {
		t.Error("empty MatchAll should match everything")
	}
}
