package privilege

import "testing"

func TestAuthorityString(t *testing.T) {
	cases := map[Authority]string{
		Override:      "override",
		Chown:         "chown",
		ReadSearch:    "read-search",
		Authority(99): "unknown",
	}
	for a, want := range cases {
		if got := a.String(); got != want {
			t.Errorf("Authority(%d).String() = %q, want %q", a, got, want)
		}
	}
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	calls := 0
	g := &Guard{
		lowerFunc: func(int) error {
			calls++
			return nil
		},
	}
	if err := g.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if calls != 1 {
		t.Errorf("lowerFunc called %d times, want 1", calls)
	}
}

func TestNilGuardReleaseIsNoop(t *testing.T) {
	var g *Guard
	if err := g.Release(); err != nil {
		t.Fatalf("nil guard release: %v", err)
	}
}
