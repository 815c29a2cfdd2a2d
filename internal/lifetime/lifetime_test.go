package lifetime

import "testing"

func TestOutlives(t *testing.T) {
	table := NewTable()
	outer := table.AddRegion(NoRegion)
	inner := table.AddRegion(outer)
	sibling := table.AddRegion(outer)
	nested := table.AddRegion(inner)

	cases := []struct {
		name string
		a, b RegionID
		want bool
	}{
		{"region outlives itself", inner, inner, true},
		{"outer outlives inner", outer, inner, true},
		{"outer outlives transitively nested", outer, nested, true},
		{"inner does not outlive outer", inner, outer, false},
		{"siblings do not outlive each other", sibling, inner, false},
	}
	for _, tc := range cases {
		if got := table.Outlives(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: Outlives(%d, %d) = %v, want %v", tc.name, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestObjectBorrowed(t *testing.T) {
	table := NewTable()
	if table.ObjectBorrowed(7) {
		t.Error("Unknown object should not be borrowed")
	}

	table.SetBorrowed(7, true)
	if !table.ObjectBorrowed(7) {
		t.Error("Expected object 7 to be borrowed")
	}

	table.SetBorrowed(7, false)
	if table.ObjectBorrowed(7) {
		t.Error("Expected borrow on object 7 to be released")
	}
}

func TestValidate(t *testing.T) {
	table := NewTable()
	outer := table.AddRegion(NoRegion)
	table.AddRegion(outer)

	if err := table.Validate(); err != nil {
		t.Fatalf("Valid region tree rejected: %v", err)
	}
}
