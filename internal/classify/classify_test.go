package classify

import "testing"

func TestClassifier_DefaultVocabulary(t *testing.T) {
	c := New()

	tests := []struct {
		text string
		want bool
	}{
		{"RFP-2024-001 IT Services", true},
		{"INVITATION FOR BID: Road Resurfacing", true},
		{"Janitorial Maintenance Contract", true},
		{"request for quote - office chairs", true},
		{"Annual Picnic Photos", false},
		{"Home", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := c.IsBid(tt.text); got != tt.want {
			t.Errorf("IsBid(%q) = %v, expected %v", tt.text, got, tt.want)
		}
	}
}

func TestClassifier_SubstringMatch(t *testing.T) {
	c := New()

	// "bidding" and "subcontractor" still qualify: substring, not word, matching.
	for _, text := range []string{"Open bidding period", "Subcontractor outreach"} {
		if !c.IsBid(text) {
			t.Errorf("expected %q to qualify", text)
		}
	}
}

func TestClassifier_CustomKeywords(t *testing.T) {
	c := New("  Tender ", "", "AWARD")

	if !c.IsBid("tender notice") {
		t.Error("expected custom keyword to match case-insensitively")
	}
	if c.IsBid("bid notice") {
		t.Error("default vocabulary should not apply when custom keywords are given")
	}
}

func TestClassifier_MatchReturnsFirstInOrder(t *testing.T) {
	c := New("contract", "services")

	kw, ok := c.Match("Services contract renewal")
	if !ok {
		t.Fatal("expected a match")
	}
	if kw != "contract" {
		t.Errorf("expected first keyword in list order, got %q", kw)
	}
}
