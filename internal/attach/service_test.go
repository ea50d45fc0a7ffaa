package attach

import "testing"

func TestObjectKey(t *testing.T) {
	got := ObjectKey("pln_1", "att_2", "license.pdf")
	want := "pln_1/att_2/license.pdf"
	if got != want {
		t.Errorf("ObjectKey = %q, want %q", got, want)
	}
}
