package npmspec

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		arg     string
		want    PackageSpec
		wantErr bool
	}{
		{"left-pad", PackageSpec{"left-pad", "latest"}, false},
		{"left-pad@1.3.0", PackageSpec{"left-pad", "1.3.0"}, false},
		{"left-pad@^1.0.0", PackageSpec{"left-pad", "^1.0.0"}, false},
		{"@babel/core@7.20.0", PackageSpec{"@babel/core", "7.20.0"}, false},
		{"@babel/core", PackageSpec{"@babel/core", "latest"}, false},
		{"", PackageSpec{}, true},
		{"@", PackageSpec{}, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.arg)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.arg, got, tt.want)
		}
	}
}

func TestClassifyVersionSpec(t *testing.T) {
	tests := []struct {
		spec string
		want Kind
	}{
		{"latest", KindLatest},
		{"", KindLatest},
		{"1.2.3", KindExact},
		{"1.2.3-alpha.1", KindExact},
		{"^1.2.3", KindRange},
		{"~1.2.3", KindRange},
		{">=1.0.0", KindRange},
		{"*", KindRange},
	}
	for _, tt := range tests {
		if got := ClassifyVersionSpec(tt.spec); got != tt.want {
			t.Errorf("ClassifyVersionSpec(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestResolveVersionExact(t *testing.T) {
	published := map[string]bool{"1.2.3": true, "1.3.0": true}
	got, err := ResolveVersion("1.2.3", "1.3.0", published)
	if err != nil {
		t.Fatalf("ResolveVersion() error = %v", err)
	}
	if got != "1.2.3" {
		t.Fatalf("ResolveVersion() = %q; want 1.2.3", got)
	}
}

func TestResolveVersionExactMissingFails(t *testing.T) {
	published := map[string]bool{"1.3.0": true}
	_, err := ResolveVersion("9.9.9", "1.3.0", published)
	if _, ok := err.(*VersionNotFound); !ok {
		t.Fatalf("ResolveVersion() error = %v; want *VersionNotFound", err)
	}
}

func TestResolveVersionRangeUsesLatest(t *testing.T) {
	published := map[string]bool{"1.2.3": true, "1.3.0": true}
	got, err := ResolveVersion("^1.0.0", "1.3.0", published)
	if err != nil {
		t.Fatalf("ResolveVersion() error = %v", err)
	}
	if got != "1.3.0" {
		t.Fatalf("ResolveVersion() = %q; want 1.3.0 (simplified range policy)", got)
	}
}
