package review

import (
	"reflect"
	"testing"
)

func TestWireRoundTrip(t *testing.T) {
	comments := []PageComment{
		{
			PageTitle: "Cover Page",
			Text:      "x",
			Fields: []FieldRef{
				{Section: "coverPage", InputKey: "companyName", Label: "Company name", Value: "Acme"},
				{Section: "coverPage", InputKey: "crNumber", Label: "CR number", Value: "10500"},
			},
		},
		{
			PageTitle: "Value Chain",
			Text:      "",
			Fields: []FieldRef{
				{Section: "valueChain", InputKey: "supplier", RowID: "row-2", Label: "Supplier", Value: "Gulf Metals"},
			},
		},
	}

	flat := FlattenComments(comments)
	parsed := ParseComments(flat)
	if !reflect.DeepEqual(comments, parsed) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", comments, parsed)
	}
}

func TestWireKeyScheme(t *testing.T) {
	flat := FlattenComments([]PageComment{{
		PageTitle: "Overview",
		Text:      "revise",
		Fields:    []FieldRef{{Section: "overview", InputKey: "investmentSize", RowID: "r1", Label: "Size", Value: "9"}},
	}})

	expect := map[string]string{
		"Comments[0].pageTitleForTL":     "Overview",
		"Comments[0].comment":            "revise",
		"Comments[0].fields[0].section":  "overview",
		"Comments[0].fields[0].inputKey": "investmentSize",
		"Comments[0].fields[0].label":    "Size",
		"Comments[0].fields[0].id":       "r1",
		"Comments[0].fields[0].value":    "9",
	}
	for key, want := range expect {
		if got := flat.Get(key); got != want {
			t.Fatalf("key %s = %q, want %q", key, got, want)
		}
	}
	if len(flat) != len(expect) {
		t.Fatalf("unexpected extra keys in payload: %v", flat)
	}
}

func TestCommentCount(t *testing.T) {
	flat := FlattenComments([]PageComment{
		{PageTitle: "A"}, {PageTitle: "B"}, {PageTitle: "C"},
	})
	if got := CommentCount(flat); got != 3 {
		t.Fatalf("CommentCount = %d, want 3", got)
	}
}
