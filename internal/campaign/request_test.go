package campaign

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	limits := Limits{MaxPerAccount: 50, MaxConcurrency: 4, DelayFloor: 10}
	cases := []struct {
		name  string
		in    Request
		want  Request
		warns int
	}{
		{
			name:  "within limits",
			in:    Request{Group: "ventas", List: "l1", PerAccount: 10, Concurrency: 2, DelayMin: 15, DelayMax: 30, Templates: []string{"a"}},
			want:  Request{Group: "ventas", List: "l1", PerAccount: 10, Concurrency: 2, DelayMin: 15, DelayMax: 30, Templates: []string{"a"}},
			warns: 0,
		},
		{
			name:  "everything clamped",
			in:    Request{PerAccount: 1, Concurrency: 9, DelayMin: 3, DelayMax: 5, Templates: []string{" ", ""}},
			want:  Request{Group: "default", PerAccount: 2, Concurrency: 4, DelayMin: 10, DelayMax: 10, Templates: []string{DefaultTemplate}},
			warns: 4,
		},
		{
			name:  "per account above max",
			in:    Request{Group: " g ", PerAccount: 80, Concurrency: 0, DelayMin: 20, DelayMax: 25, Templates: []string{"x", "y"}},
			want:  Request{Group: "g", PerAccount: 50, Concurrency: 1, DelayMin: 20, DelayMax: 25, Templates: []string{"x", "y"}},
			warns: 2,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, warns := Normalize(tc.in, limits)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
			if len(warns) != tc.warns {
				t.Fatalf("warnings = %q, want %d", warns, tc.warns)
			}
		})
	}
}

func TestRequestCampaign(t *testing.T) {
	t.Parallel()
	r := Request{Group: "g", PerAccount: 3, Concurrency: 2, DelayMin: 10, DelayMax: 12, Templates: []string{"hi"}}
	c := r.Campaign([]string{"x"})
	if c.Group != "g" || c.PerAccountCap != 3 || c.Concurrency != 2 || c.DelayMin != 10 || c.DelayMax != 12 || len(c.Recipients) != 1 {
		t.Fatalf("campaign = %+v", c)
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"LOGIN_REQUIRED":                     true,
		"direct: challenge_required":         true,
		"feedback_required: spam":            true,
		"rate_limit":                         true,
		"checkpoint required":                true,
		"consent_required":                   true,
		"recipient not found":                false,
		"":                                   false,
	}
	for in, want := range cases {
		if got := Diagnose(in) != ""; got != want {
			t.Errorf("Diagnose(%q) hinted=%v, want %v", in, got, want)
		}
	}
}
