package pep440

import "testing"

func TestSpecifierSetMatch(t *testing.T) {
	tests := []struct {
		version string
		spec    string
		ok      bool
	}{
		{"1.0", "", true},
		{"1.0", "==1.0", true},
		{"1.0.0", "==1.0", true},
		{"1.1", "==1.0", false},
		{"1.0", "== 1.0", true}, // spaces after operator
		{"1.1", "!=1.0", true},
		{"1.0", "!=1.0", false},
		{"2.0", ">=1.0", true},
		{"1.0", ">=1.0", true},
		{"0.9", ">=1.0", false},
		{"0.9", "<1.0", true},
		{"1.0", "<1.0", false},
		{"1.5", ">1.0", true},
		{"1.0", ">1.0", false},
		{"1.0", "<=1.0", true},
		{"1.1", "<=1.0", false},
		{"1.5", ">=1.0,<2.0", true},
		{"0.9", ">=1.0,<2.0", false},
		{"2.0", ">=1.0,<2.0", false},
		{"2.2", "==2.2.*", true},
		{"2.2.1", "==2.2.*", true},
		{"2.2b1", "==2.2.*", true},
		{"2.3", "==2.2.*", false},
		{"2.2.1", "!=2.2.*", false},
		{"2.3", "!=2.2.*", true},
		{"2.2.1", "~=2.2", true},
		{"2.3", "~=2.2", true},
		{"3.0", "~=2.2", false},
		{"2.1", "~=2.2", false},
		{"2.2.5", "~=2.2.3", true},
		{"2.3.0", "~=2.2.3", false},
		{"1.0", "===1.0", true},
		{"1.0.0", "===1.0", false}, // literal comparison
		{"1.0+local", "==1.0", true},
		{"1.0+local", "==1.0+local", true},
		{"1.0+other", "==1.0+local", false},
		{"1.0.post1", ">1.0", false}, // post-release of the pinned base
		{"1.1", ">1.0", true},
		{"1.0.post1", ">1.0.post0", true},
		{"1.0rc1", "<1.0", false}, // pre-release of the pinned base
		{"0.9", "<1.0", true},
		{"1.0a1", ">=1.0a1", true},
		{"1.0.dev1", ">=1.0.dev1", true},
	}

	for _, tt := range tests {
		t.Run(tt.version+"_"+tt.spec, func(t *testing.T) {
			set, err := ParseSpecifierSet(tt.spec)
			if err != nil {
				t.Fatalf("ParseSpecifierSet(%q) error: %v", tt.spec, err)
			}
			got := set.Match(MustParse(tt.version))
			if got != tt.ok {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.version, tt.spec, got, tt.ok)
			}
		})
	}
}

func TestParseSpecifierSetInvalid(t *testing.T) {
	inputs := []string{
		"1.0",      // missing operator
		">=",       // missing version
		"==1.0,,",  // empty clause
		">=1.0.*",  // wildcard needs == or !=
		"~=1",      // needs two release segments
		"==not-a-version",
	}
	for _, input := range inputs {
		if _, err := ParseSpecifierSet(input); err == nil {
			t.Errorf("ParseSpecifierSet(%q) succeeded, want error", input)
		}
	}
}

func TestSpecifierSetHasPrerelease(t *testing.T) {
	tests := []struct {
		spec string
		want bool
	}{
		{"", false},
		{">=1.0", false},
		{">=1.0a1", true},
		{"==1.0.dev1", true},
		{">=1.0,<2.0", false},
	}

	for _, tt := range tests {
		set, err := ParseSpecifierSet(tt.spec)
		if err != nil {
			t.Fatalf("ParseSpecifierSet(%q) error: %v", tt.spec, err)
		}
		if got := set.HasPrerelease(); got != tt.want {
			t.Errorf("HasPrerelease(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestSpecifierSetPins(t *testing.T) {
	tests := []struct {
		spec    string
		version string
		want    bool
	}{
		{"==1.0", "1.0", true},
		{"==1.0", "1.0.0", true},
		{"==1.0.*", "1.0", false}, // wildcard is not a pin
		{">=1.0", "1.0", false},
		{"===1.0", "1.0", true},
		{"==2.0", "1.0", false},
	}

	for _, tt := range tests {
		set, err := ParseSpecifierSet(tt.spec)
		if err != nil {
			t.Fatalf("ParseSpecifierSet(%q) error: %v", tt.spec, err)
		}
		if got := set.Pins(MustParse(tt.version)); got != tt.want {
			t.Errorf("Pins(%q, %q) = %v, want %v", tt.spec, tt.version, got, tt.want)
		}
	}
}
