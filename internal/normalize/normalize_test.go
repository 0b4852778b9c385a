package normalize

import "testing"

func TestEmail(t *testing.T) {
	in := "  John.DOE@Example.COM  "
	want := "john.doe@example.com"
	got := Email(in)
	if got != want {
		t.Fatalf("Normalize.Email(%q) = %q, want %q", in, got, want)
	}
}

func TestLimit(t *testing.T) {
	cases := []struct{ in, want int }{
		{-5, DefaultLimit},
		{0, DefaultLimit},
		{1, 1},
		{250, 250},
		{MaxLimit, MaxLimit},
		{5000, MaxLimit},
	}
	for _, c := range cases {
		if got := Limit(c.in); got != c.want {
			t.Fatalf("Limit(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
