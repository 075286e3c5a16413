package selector

import (
	"errors"
	"testing"

	"github.com/frederic-klein/pydl/internal/dist"
	"github.com/frederic-klein/pydl/internal/distfile"
	"github.com/frederic-klein/pydl/internal/pep425"
	"github.com/frederic-klein/pydl/internal/pep440"
)

func tagset(t *testing.T, tags ...string) pep425.TagSet {
	t.Helper()

	var list []pep425.Tag
	for _, s := range tags {
		tag, err := pep425.ParseTag(s)
		if err != nil {
			t.Fatal(err)
		}
		list = append(list, tag.Expand()...)
	}
	return pep425.NewTagSet(list)
}

func wheel(t *testing.T, filename string) dist.Candidate {
	t.Helper()

	w, err := distfile.ParseWheel(filename)
	if err != nil {
		t.Fatal(err)
	}
	return dist.Candidate{
		Name:    distfile.NormalizeName(w.Name),
		Version: w.Version,
		Kind:    dist.KindBinary,
		Tags:    []pep425.Tag{w.Tag},
		Build:   w.Build,
		Link:    dist.Link{Filename: filename},
	}
}

func sdist(t *testing.T, filename string) dist.Candidate {
	t.Helper()

	s, err := distfile.ParseSdist(filename)
	if err != nil {
		t.Fatal(err)
	}
	return dist.Candidate{
		Name:    distfile.NormalizeName(s.Name),
		Version: s.Version,
		Kind:    dist.KindSource,
		Link:    dist.Link{Filename: filename},
	}
}

func requirement(t *testing.T, s string) dist.Requirement {
	t.Helper()

	req, err := dist.ParseRequirement(s)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func defaultPolicy(t *testing.T) Policy {
	t.Helper()
	return Policy{Tags: tagset(t, "cp39-cp39-manylinux1_x86_64", "py3-none-any", "py2.py3-none-any")}
}

func TestPolicy_Select_NewestWins(t *testing.T) {
	p := defaultPolicy(t)
	candidates := []dist.Candidate{
		sdist(t, "simple-1.0.tar.gz"),
		sdist(t, "simple-3.0.tar.gz"),
		sdist(t, "simple-2.0.tar.gz"),
		sdist(t, "other-9.0.tar.gz"),
	}

	got, err := p.Select(requirement(t, "simple"), candidates)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.Link.Filename != "simple-3.0.tar.gz" {
		t.Errorf("Select() = %s, want simple-3.0.tar.gz", got.Link.Filename)
	}
}

func TestPolicy_Select_SpecifierBounds(t *testing.T) {
	p := defaultPolicy(t)
	candidates := []dist.Candidate{
		sdist(t, "simple-1.0.tar.gz"),
		sdist(t, "simple-2.0.tar.gz"),
		sdist(t, "simple-3.0.tar.gz"),
	}

	tests := []struct {
		req  string
		want string
	}{
		{"simple==1.0", "simple-1.0.tar.gz"},
		{"simple<3.0", "simple-2.0.tar.gz"},
		{"simple>=1.0,<=2.0", "simple-2.0.tar.gz"},
		{"simple==2.*", "simple-2.0.tar.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.req, func(t *testing.T) {
			got, err := p.Select(requirement(t, tt.req), candidates)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if got.Link.Filename != tt.want {
				t.Errorf("Select() = %s, want %s", got.Link.Filename, tt.want)
			}
		})
	}
}

func TestPolicy_Select_VersionBeatsKind(t *testing.T) {
	// A newer sdist outranks an older wheel when nothing biases the kind.
	p := defaultPolicy(t)
	candidates := []dist.Candidate{
		wheel(t, "source-0.8-py2.py3-none-any.whl"),
		sdist(t, "source-1.0.tar.gz"),
	}

	got, err := p.Select(requirement(t, "source"), candidates)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.Link.Filename != "source-1.0.tar.gz" {
		t.Errorf("Select() = %s, want source-1.0.tar.gz", got.Link.Filename)
	}
}

func TestPolicy_Select_PreferBinary(t *testing.T) {
	p := defaultPolicy(t)
	p.PreferBinary = true
	candidates := []dist.Candidate{
		wheel(t, "source-0.8-py2.py3-none-any.whl"),
		sdist(t, "source-1.0.tar.gz"),
	}

	got, err := p.Select(requirement(t, "source"), candidates)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.Link.Filename != "source-0.8-py2.py3-none-any.whl" {
		t.Errorf("Select() = %s, want the 0.8 wheel", got.Link.Filename)
	}
}

func TestPolicy_Select_PreferBinaryAfterSpecifier(t *testing.T) {
	// The specifier filters first; kind preference never overrides it.
	p := defaultPolicy(t)
	p.PreferBinary = true
	candidates := []dist.Candidate{
		wheel(t, "source-0.8-py2.py3-none-any.whl"),
		sdist(t, "source-1.0.tar.gz"),
	}

	got, err := p.Select(requirement(t, "source>0.9"), candidates)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.Link.Filename != "source-1.0.tar.gz" {
		t.Errorf("Select() = %s, want source-1.0.tar.gz", got.Link.Filename)
	}
}

func TestPolicy_Select_BinaryWinsAtEqualVersion(t *testing.T) {
	p := defaultPolicy(t)
	candidates := []dist.Candidate{
		sdist(t, "simple-1.0.tar.gz"),
		wheel(t, "simple-1.0-py3-none-any.whl"),
	}

	got, err := p.Select(requirement(t, "simple"), candidates)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.Link.Filename != "simple-1.0-py3-none-any.whl" {
		t.Errorf("Select() = %s, want the wheel at the tied version", got.Link.Filename)
	}
}

func TestPolicy_Select_TagRankBreaksTies(t *testing.T) {
	p := defaultPolicy(t)
	candidates := []dist.Candidate{
		wheel(t, "simple-1.0-py3-none-any.whl"),
		wheel(t, "simple-1.0-cp39-cp39-manylinux1_x86_64.whl"),
	}

	got, err := p.Select(requirement(t, "simple"), candidates)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.Link.Filename != "simple-1.0-cp39-cp39-manylinux1_x86_64.whl" {
		t.Errorf("Select() = %s, want the more specific wheel", got.Link.Filename)
	}
}

func TestPolicy_Select_BuildTagBreaksTies(t *testing.T) {
	p := defaultPolicy(t)
	candidates := []dist.Candidate{
		wheel(t, "simple-1.0-1-py3-none-any.whl"),
		wheel(t, "simple-1.0-2-py3-none-any.whl"),
	}

	got, err := p.Select(requirement(t, "simple"), candidates)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.Link.Filename != "simple-1.0-2-py3-none-any.whl" {
		t.Errorf("Select() = %s, want the higher build tag", got.Link.Filename)
	}
}

func TestPolicy_Select_UnsupportedWheelSkipped(t *testing.T) {
	p := defaultPolicy(t)
	candidates := []dist.Candidate{
		wheel(t, "simple-2.0-cp27-cp27mu-manylinux1_x86_64.whl"),
		sdist(t, "simple-1.0.tar.gz"),
	}

	got, err := p.Select(requirement(t, "simple"), candidates)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.Link.Filename != "simple-1.0.tar.gz" {
		t.Errorf("Select() = %s, want the sdist (the wheel does not fit the environment)", got.Link.Filename)
	}
}

func TestPolicy_Select_FormatControl(t *testing.T) {
	candidates := []dist.Candidate{
		wheel(t, "simple-1.0-py3-none-any.whl"),
		sdist(t, "simple-1.0.tar.gz"),
	}

	t.Run("no-binary", func(t *testing.T) {
		p := defaultPolicy(t)
		p.Format = NewFormatControl()
		p.Format.DisallowBinary("simple")

		got, err := p.Select(requirement(t, "simple"), candidates)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Kind != dist.KindSource {
			t.Errorf("Select() = %s, want the sdist", got.Link.Filename)
		}
	})

	t.Run("only-binary", func(t *testing.T) {
		p := defaultPolicy(t)
		p.Format = NewFormatControl()
		p.Format.RequireBinary("simple")

		got, err := p.Select(requirement(t, "simple"), candidates)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Kind != dist.KindBinary {
			t.Errorf("Select() = %s, want the wheel", got.Link.Filename)
		}
	})

	t.Run("only-binary all with sdists only", func(t *testing.T) {
		p := defaultPolicy(t)
		p.Format = NewFormatControl()
		p.Format.RequireBinary(":all:")

		_, err := p.Select(requirement(t, "simple"), []dist.Candidate{sdist(t, "simple-1.0.tar.gz")})
		var noCand *NoCandidateError
		if !errors.As(err, &noCand) {
			t.Fatalf("Select() error = %v, want *NoCandidateError", err)
		}
	})
}

func TestPolicy_Select_NoCandidate(t *testing.T) {
	p := defaultPolicy(t)
	candidates := []dist.Candidate{
		wheel(t, "source-0.8-py2.py3-none-any.whl"),
		sdist(t, "source-1.0.tar.gz"),
	}

	_, err := p.Select(requirement(t, "source>=2.0"), candidates)
	var noCand *NoCandidateError
	if !errors.As(err, &noCand) {
		t.Fatalf("Select() error = %v, want *NoCandidateError", err)
	}
	want := "could not find a version that satisfies the requirement source>=2.0 (from versions: 0.8, 1.0)"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestPolicy_Select_UnknownProject(t *testing.T) {
	p := defaultPolicy(t)

	_, err := p.Select(requirement(t, "nonexistent"), nil)
	var noCand *NoCandidateError
	if !errors.As(err, &noCand) {
		t.Fatalf("Select() error = %v, want *NoCandidateError", err)
	}
	want := "could not find a version that satisfies the requirement nonexistent (from versions: none)"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestPolicy_Select_Prereleases(t *testing.T) {
	final := sdist(t, "pkg-1.0.tar.gz")
	beta := sdist(t, "pkg-2.0b1.tar.gz")

	t.Run("excluded by default", func(t *testing.T) {
		p := defaultPolicy(t)
		got, err := p.Select(requirement(t, "pkg"), []dist.Candidate{final, beta})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Link.Filename != "pkg-1.0.tar.gz" {
			t.Errorf("Select() = %s, want the final release", got.Link.Filename)
		}
	})

	t.Run("allowed by flag", func(t *testing.T) {
		p := defaultPolicy(t)
		p.AllowPrerelease = true
		got, err := p.Select(requirement(t, "pkg"), []dist.Candidate{final, beta})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Link.Filename != "pkg-2.0b1.tar.gz" {
			t.Errorf("Select() = %s, want the beta", got.Link.Filename)
		}
	})

	t.Run("allowed by specifier", func(t *testing.T) {
		p := defaultPolicy(t)
		got, err := p.Select(requirement(t, "pkg>=2.0b1"), []dist.Candidate{final, beta})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Link.Filename != "pkg-2.0b1.tar.gz" {
			t.Errorf("Select() = %s, want the beta", got.Link.Filename)
		}
	})

	t.Run("fallback when only prereleases exist", func(t *testing.T) {
		p := defaultPolicy(t)
		got, err := p.Select(requirement(t, "pkg"), []dist.Candidate{beta})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Link.Filename != "pkg-2.0b1.tar.gz" {
			t.Errorf("Select() = %s, want the beta", got.Link.Filename)
		}
	})
}

func TestPolicy_Select_RequiresPython(t *testing.T) {
	target := pep440.MustParse("3.6")
	blocked := sdist(t, "pkg-1.0.tar.gz")
	blocked.Link.RequiresPython = ">=3.7"

	t.Run("blocking the only candidate", func(t *testing.T) {
		p := defaultPolicy(t)
		p.TargetPython = &target

		_, err := p.Select(requirement(t, "pkg"), []dist.Candidate{blocked})
		var pyErr *RequiresPythonError
		if !errors.As(err, &pyErr) {
			t.Fatalf("Select() error = %v, want *RequiresPythonError", err)
		}
		want := "Package 'pkg' requires a different Python: 3.6 not in '>=3.7'"
		if err.Error() != want {
			t.Errorf("error = %q, want %q", err.Error(), want)
		}
	})

	t.Run("ignored", func(t *testing.T) {
		p := defaultPolicy(t)
		p.TargetPython = &target
		p.IgnoreRequiresPython = true

		got, err := p.Select(requirement(t, "pkg"), []dist.Candidate{blocked})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Link.Filename != "pkg-1.0.tar.gz" {
			t.Errorf("Select() = %s, want pkg-1.0.tar.gz", got.Link.Filename)
		}
	})

	t.Run("another candidate passes", func(t *testing.T) {
		p := defaultPolicy(t)
		p.TargetPython = &target
		older := sdist(t, "pkg-0.9.tar.gz")

		got, err := p.Select(requirement(t, "pkg"), []dist.Candidate{blocked, older})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Link.Filename != "pkg-0.9.tar.gz" {
			t.Errorf("Select() = %s, want the compatible candidate", got.Link.Filename)
		}
	})

	t.Run("metadata recheck", func(t *testing.T) {
		p := defaultPolicy(t)
		p.TargetPython = &target

		if err := p.CheckTargetPython("pkg", ">=3.7"); err == nil {
			t.Error("CheckTargetPython() should reject 3.6 against >=3.7")
		}
		if err := p.CheckTargetPython("pkg", ">=3.0"); err != nil {
			t.Errorf("CheckTargetPython() error = %v", err)
		}
		if err := p.CheckTargetPython("pkg", ""); err != nil {
			t.Errorf("CheckTargetPython() error = %v for empty constraint", err)
		}
	})
}

func TestPolicy_Select_Yanked(t *testing.T) {
	yanked := sdist(t, "pkg-2.0.tar.gz")
	yanked.Link.Yanked = true
	fine := sdist(t, "pkg-1.0.tar.gz")

	t.Run("skipped for open requirement", func(t *testing.T) {
		p := defaultPolicy(t)
		got, err := p.Select(requirement(t, "pkg"), []dist.Candidate{yanked, fine})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Link.Filename != "pkg-1.0.tar.gz" {
			t.Errorf("Select() = %s, want the non-yanked release", got.Link.Filename)
		}
	})

	t.Run("eligible for exact pin", func(t *testing.T) {
		p := defaultPolicy(t)
		got, err := p.Select(requirement(t, "pkg==2.0"), []dist.Candidate{yanked, fine})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Link.Filename != "pkg-2.0.tar.gz" {
			t.Errorf("Select() = %s, want the pinned yanked release", got.Link.Filename)
		}
	})
}

func TestFormatControl(t *testing.T) {
	t.Run("later flag wins per project", func(t *testing.T) {
		fc := NewFormatControl()
		fc.DisallowBinary("fred")
		fc.RequireBinary("fred")

		if !fc.BinaryAllowed("fred") {
			t.Error("BinaryAllowed(fred) = false after --only-binary=fred")
		}
		if fc.SourceAllowed("fred") {
			t.Error("SourceAllowed(fred) = true after --only-binary=fred")
		}
	})

	t.Run("all clears the opposite set", func(t *testing.T) {
		fc := NewFormatControl()
		fc.DisallowBinary("fred")
		fc.RequireBinary(":all:")

		if !fc.BinaryAllowed("fred") {
			t.Error("BinaryAllowed(fred) = false, want true after --only-binary=:all:")
		}
		if !fc.BinaryOnly() {
			t.Error("BinaryOnly() = false, want true")
		}
	})

	t.Run("none resets", func(t *testing.T) {
		fc := NewFormatControl()
		fc.RequireBinary(":all:")
		fc.RequireBinary(":none:")

		if !fc.SourceAllowed("fred") {
			t.Error("SourceAllowed(fred) = false after --only-binary=:none:")
		}
		if fc.BinaryOnly() {
			t.Error("BinaryOnly() = true after reset")
		}
	})

	t.Run("project entry beats wildcard", func(t *testing.T) {
		fc := NewFormatControl()
		fc.RequireBinary(":all:")
		fc.DisallowBinary("fred")

		if fc.BinaryAllowed("fred") {
			t.Error("BinaryAllowed(fred) = true, want the project entry to win")
		}
		if !fc.BinaryAllowed("barney") {
			t.Error("BinaryAllowed(barney) = false, want the wildcard to apply")
		}
		if fc.BinaryOnly() {
			t.Error("BinaryOnly() = true with a --no-binary entry present")
		}
	})

	t.Run("names are normalized", func(t *testing.T) {
		fc := NewFormatControl()
		fc.DisallowBinary("My_Package")

		if fc.BinaryAllowed("my-package") {
			t.Error("BinaryAllowed(my-package) = true, want normalization to apply")
		}
	})

	t.Run("nil allows everything", func(t *testing.T) {
		var fc *FormatControl
		if !fc.BinaryAllowed("x") || !fc.SourceAllowed("x") {
			t.Error("nil FormatControl should allow both formats")
		}
		if fc.BinaryOnly() {
			t.Error("nil FormatControl is not binary-only")
		}
	})
}
