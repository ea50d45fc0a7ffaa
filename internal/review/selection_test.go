package review

import "testing"

func TestToggleIsInverse(t *testing.T) {
	selection := NewSelection()
	field := FieldRef{Section: "coverPage", InputKey: "companyName", Label: "Company name"}

	selection.Toggle(true, field)
	if selection.Count() != 1 {
		t.Fatalf("expected 1 tracked field, got %d", selection.Count())
	}
	selection.Toggle(false, field)
	if selection.Count() != 0 {
		t.Fatalf("expected empty selection after inverse toggle, got %d", selection.Count())
	}
}

func TestToggleIdempotent(t *testing.T) {
	selection := NewSelection()
	field := FieldRef{Section: "overview", InputKey: "investmentSize", Label: "Investment size"}

	selection.Toggle(true, field)
	selection.Toggle(true, field)
	if selection.Count() != 1 {
		t.Fatalf("repeated toggle on should not duplicate: got %d", selection.Count())
	}

	selection.Toggle(false, field)
	selection.Toggle(false, field)
	if selection.Count() != 0 {
		t.Fatalf("repeated toggle off should be a no-op: got %d", selection.Count())
	}
}

func TestRowScopedFieldsDoNotCollide(t *testing.T) {
	selection := NewSelection()
	singleton := FieldRef{Section: "valueChain", InputKey: "supplier"}
	rowA := FieldRef{Section: "valueChain", InputKey: "supplier", RowID: "row-1"}
	rowB := FieldRef{Section: "valueChain", InputKey: "supplier", RowID: "row-2"}

	selection.Toggle(true, singleton)
	selection.Toggle(true, rowA)
	selection.Toggle(true, rowB)
	if selection.Count() != 3 {
		t.Fatalf("singleton and row-scoped fields must track independently: got %d", selection.Count())
	}

	selection.Toggle(false, rowA)
	if selection.Count() != 2 {
		t.Fatalf("removing one row must not touch the others: got %d", selection.Count())
	}
	if !selection.Contains("supplier", "row-2") {
		t.Fatal("row-2 should remain tracked")
	}
	if selection.Contains("supplier", "row-1") {
		t.Fatal("row-1 should be gone")
	}
	if !selection.Contains("supplier", "") {
		t.Fatal("singleton lookup without rowID should still match")
	}
}

func TestFieldsPreserveInsertionOrder(t *testing.T) {
	selection := NewSelection()
	first := FieldRef{Section: "coverPage", InputKey: "companyName"}
	second := FieldRef{Section: "coverPage", InputKey: "crNumber"}
	selection.Toggle(true, first)
	selection.Toggle(true, second)

	fields := selection.Fields()
	if len(fields) != 2 || fields[0].InputKey != "companyName" || fields[1].InputKey != "crNumber" {
		t.Fatalf("unexpected order: %+v", fields)
	}

	fields[0].InputKey = "mutated"
	if selection.Fields()[0].InputKey != "companyName" {
		t.Fatal("Fields must return a copy")
	}
}
