package lang

import "testing"

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []struct {
		text string
		lang string
	}{
		{"The  café\r\nwas  “closed”.", "en"},
		{"أحمد إبراهيم آمن بالمدرسة الأولى", "ar"},
		{"ﬁnally ﬂowers bloom", "en"},
		{"   lots   of   spaces   ", "en"},
	}
	for _, in := range inputs {
		once, _ := Normalize(in.text, in.lang, NormalizeOptions{})
		twice, rules := Normalize(once, in.lang, NormalizeOptions{})
		if once != twice {
			t.Fatalf("normalize not idempotent for %q: once=%q twice=%q", in.text, once, twice)
		}
		if len(rules) != 0 {
			t.Fatalf("re-normalizing an already-normalized string should apply no rules, got %+v", rules)
		}
	}
}

func TestNormalizeCollapsesWhitespaceAndCRLF(t *testing.T) {
	got, rules := Normalize("line one\r\nline   two", "en", NormalizeOptions{})
	want := "line one\nline two"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	found := false
	for _, r := range rules {
		if r.Rule == "whitespace_collapse" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a whitespace_collapse rule to be recorded")
	}
}

func TestNormalizeOCRArtifactCleanup(t *testing.T) {
	got, rules := Normalize("ﬁnd the ﬂow", "en", NormalizeOptions{})
	if got != "find the flow" {
		t.Fatalf("got %q", got)
	}
	if len(rules) < 2 {
		t.Fatalf("expected at least 2 ocr_artifact rules, got %+v", rules)
	}
}

func TestNormalizeArabicUnifiesAlefAndYeh(t *testing.T) {
	got, rules := Normalize("أحمد ذهب إلى المقهى", "ar", NormalizeOptions{})
	if got != "احمد ذهب الي المقهي" {
		t.Fatalf("got %q", got)
	}
	var sawAlef, sawYeh bool
	for _, r := range rules {
		switch r.Rule {
		case "alef_unification":
			sawAlef = true
		case "yeh_unification":
			sawYeh = true
		}
	}
	if !sawAlef || !sawYeh {
		t.Fatalf("expected alef and yeh unification rules, got %+v", rules)
	}
}

func TestNormalizeArabicRemovesDiacriticsUnlessPreserved(t *testing.T) {
	withDiacritics := "كَتَبَ"
	stripped, rules := Normalize(withDiacritics, "ar", NormalizeOptions{PreserveArabicDiacritics: false})
	if stripped == withDiacritics {
		t.Fatal("expected diacritics to be stripped")
	}
	found := false
	for _, r := range rules {
		if r.Rule == "diacritic_removal" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected diacritic_removal rules to be recorded")
	}

	preserved, _ := Normalize(withDiacritics, "ar", NormalizeOptions{PreserveArabicDiacritics: true})
	if preserved != withDiacritics {
		t.Fatalf("expected diacritics preserved, got %q", preserved)
	}
}

func TestNormalizeEnglishSmartQuotesAndLigatures(t *testing.T) {
	got, _ := Normalize("“hello” and a œuvre", "en", NormalizeOptions{})
	if got != "\"hello\" and a oeuvre" {
		t.Fatalf("got %q", got)
	}
}
