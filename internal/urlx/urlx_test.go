package urlx

import "testing"

func TestResolveRelative(t *testing.T) {
	base := MustParse("https://registry.npmjs.org/left-pad/")
	got, err := Resolve(base, "-/left-pad-1.3.0.tgz")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz"
	if got.String() != want {
		t.Fatalf("Resolve() = %q; want %q", got.String(), want)
	}
}

func TestResolveAbsolutePassesThrough(t *testing.T) {
	base := MustParse("https://registry.npmjs.org/")
	const abs = "https://other-host.example/tarballs/left-pad-1.3.0.tgz"
	got, err := Resolve(base, abs)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.String() != abs {
		t.Fatalf("Resolve() = %q; want %q", got.String(), abs)
	}
}
