package matching

import (
	"reflect"
	"testing"
)

func TestMatches_Reflexive(t *testing.T) {
	needles := []string{
		"Frodo Baggins",
		"Baggins, Frodo",
		"fbaggins@example.com",
		"S-1001",
		"x",
		"!!!",
		"Dr. Ana-María O'Neil",
	}
	for _, n := range needles {
		if !MatchesAny(n, n) {
			t.Errorf("expected %q to match itself", n)
		}
	}
}

func TestMatches_EmptyNeedle(t *testing.T) {
	for _, n := range []string{"", "   ", "\t"} {
		if Matches(n, Candidate{ID: "", Fields: []string{"", "anything"}}) {
			t.Errorf("expected empty needle %q not to match", n)
		}
	}
}

func TestMatches_Rules(t *testing.T) {
	tests := []struct {
		name   string
		needle string
		c      Candidate
		want   bool
	}{
		{"exact id, case-insensitive", "stf-100", Candidate{ID: "STF-100"}, true},
		{"id does not substring match", "STF-10", Candidate{ID: "STF-100"}, false},
		{"raw substring", "Frodo", Candidate{Fields: []string{"Frodo Baggins (RN)"}}, true},
		{"normalized containment", "o'neil, ana", Candidate{Fields: []string{"O Neil  Ana"}}, true},
		{"last first vs first last", "Frodo Baggins", Candidate{Fields: []string{"Baggins, Frodo"}}, true},
		{"first last vs last first", "Baggins, Frodo", Candidate{Fields: []string{"Frodo Baggins"}}, true},
		{"token subset with extra words", "Frodo Baggins", Candidate{Fields: []string{"Baggins, Frodo J. (Bag End)"}}, true},
		{"tokens spread across fields do not match", "Frodo Baggins", Candidate{Fields: []string{"Frodo Took", "Bilbo Baggins"}}, false},
		{"single token not in field", "Samwise", Candidate{Fields: []string{"Baggins, Frodo"}}, false},
		{"email against stored email", "fbaggins@example.com", Candidate{Fields: []string{"FBaggins@Example.com"}}, true},
		{"dotted email login against name", "frodo.baggins@example.com", Candidate{Fields: []string{"Baggins, Frodo"}}, true},
		{"underscore email login against name", "frodo_baggins@example.com", Candidate{Fields: []string{"Frodo Baggins"}}, true},
		{"single fragment email against name", "baggins@example.com", Candidate{Fields: []string{"Frodo Baggins"}}, true},
		{"short fragments are ignored", "fb@example.com", Candidate{Fields: []string{"Frodo Baggins"}}, false},
		{"opaque login does not match name", "fbaggins@example.com", Candidate{Fields: []string{"Baggins, Frodo"}}, false},
		{"different person", "Samwise Gamgee", Candidate{Fields: []string{"Baggins, Frodo", "Took, Peregrin"}}, false},
		{"empty fields", "Frodo Baggins", Candidate{Fields: []string{"", ""}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.needle, tt.c); got != tt.want {
				t.Errorf("Matches(%q, %+v) = %v, want %v", tt.needle, tt.c, got, tt.want)
			}
		})
	}
}

func TestMatches_DirectoryResolvedName(t *testing.T) {
	// The email alone cannot match; the directory display name can.
	row := Candidate{Fields: []string{"Baggins, Frodo"}}
	if Matches("fbaggins@example.com", row) {
		t.Fatal("email login should not match a name-only row")
	}
	if !Matches("Frodo Baggins", row) {
		t.Fatal("expected directory display name to match via token subset")
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  Baggins,   Frodo ": "baggins frodo",
		"O'Neil--Ana":         "o neil ana",
		"ALL CAPS":            "all caps",
		"***":                 "",
		"Zoë  Ångström":       "zoë ångström",
		"a.b_c+d-e@f.com":     "a b c d e f com",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokens_DropsShortWords(t *testing.T) {
	got := Tokens("J. R. R. Tolkien, Jr")
	want := []string{"tolkien", "jr"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestEmailFragments(t *testing.T) {
	got := EmailFragments("f.b+frodo-baggins_x@example.com")
	want := []string{"frodo", "baggins"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EmailFragments() = %v, want %v", got, want)
	}
	if EmailFragments("Frodo Baggins") != nil {
		t.Error("expected nil for a non-email")
	}
}

func TestSearchKeys(t *testing.T) {
	got := SearchKeys("Baggins, Frodo", "", "frodo.baggins@example.com")
	want := []string{
		"baggins",
		"baggins frodo",
		"com",
		"example",
		"frodo",
		"frodo baggins example com",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SearchKeys() = %v, want %v", got, want)
	}
}

func TestRankCandidates_LongestFirst(t *testing.T) {
	got := RankCandidates([]string{"fbaggins@example.com", "Frodo Baggins"}, 6)
	want := []string{"fbaggins", "baggins", "frodo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RankCandidates() = %v, want %v", got, want)
	}
}

func TestRankCandidates_Capped(t *testing.T) {
	got := RankCandidates([]string{"alpha bravo charlie delta echo foxtrot golf hotel"}, 6)
	if len(got) != 6 {
		t.Fatalf("expected 6 candidates, got %d: %v", len(got), got)
	}
	if got[0] != "charlie" && got[0] != "foxtrot" {
		t.Errorf("expected a seven-letter token first, got %q", got[0])
	}
}
