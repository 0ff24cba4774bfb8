package events

import "testing"

func TestSubjectIsScopedToDocument(t *testing.T) {
	if got := Subject("doc-1"); got != "documents.doc-1" {
		t.Fatalf("Subject = %q, want documents.doc-1", got)
	}
}

func TestSubjectsDifferAcrossDocuments(t *testing.T) {
	if Subject("doc-1") == Subject("doc-2") {
		t.Fatal("expected distinct subjects for distinct documents")
	}
}

func TestWildcardSubjectMatchesStream(t *testing.T) {
	if WildcardSubject != StreamName+".>" {
		t.Fatalf("WildcardSubject = %q", WildcardSubject)
	}
}
