package patch

import (
	"errors"
	"testing"
)

func TestApply_SingleUniqueMatch(t *testing.T) {
	code := "const color = '#FF0000';\nconst size = 42;\n"

	result, applied, err := Apply(code, []Edit{
		{Description: "change color", OldString: "#FF0000", NewString: "#0000FF"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	want := "const color = '#0000FF';\nconst size = 42;\n"
	if result != want {
		t.Errorf("result mismatch:\ngot:  %q\nwant: %q", result, want)
	}

	if len(applied) != 1 {
		t.Fatalf("expected 1 applied edit, got %d", len(applied))
	}
	if applied[0].LineNumber != 1 {
		t.Errorf("expected line number 1, got %d", applied[0].LineNumber)
	}
}

func TestApply_LineNumbers(t *testing.T) {
	code := "line one\nline two\nline three\n"

	_, applied, err := Apply(code, []Edit{
		{Description: "edit third line", OldString: "three", NewString: "drei"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if applied[0].LineNumber != 3 {
		t.Errorf("expected line number 3, got %d", applied[0].LineNumber)
	}
}

func TestApply_NotFound(t *testing.T) {
	code := "const color = '#FF0000';\n"

	result, applied, err := Apply(code, []Edit{
		{Description: "missing", OldString: "#00FF00", NewString: "#0000FF"},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var patchErr *Error
	if !errors.As(err, &patchErr) {
		t.Fatalf("expected *patch.Error, got %T", err)
	}
	if patchErr.Kind != KindNotFound {
		t.Errorf("expected kind %q, got %q", KindNotFound, patchErr.Kind)
	}
	if patchErr.EditIndex != 1 {
		t.Errorf("expected edit index 1, got %d", patchErr.EditIndex)
	}

	// Original input returned byte-for-byte.
	if result != code {
		t.Errorf("expected original code back, got %q", result)
	}
	if applied != nil {
		t.Errorf("expected no applied edits, got %v", applied)
	}
}

func TestApply_Ambiguous(t *testing.T) {
	code := "a #FF0000 b\nc #FF0000 d\n"

	result, _, err := Apply(code, []Edit{
		{Description: "color", OldString: "#FF0000", NewString: "#0000FF"},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var patchErr *Error
	if !errors.As(err, &patchErr) {
		t.Fatalf("expected *patch.Error, got %T", err)
	}
	if patchErr.Kind != KindAmbiguous {
		t.Errorf("expected kind %q, got %q", KindAmbiguous, patchErr.Kind)
	}
	if patchErr.Matches != 2 {
		t.Errorf("expected 2 matches, got %d", patchErr.Matches)
	}
	if result != code {
		t.Errorf("expected original code back, got %q", result)
	}
}

func TestApply_SequentialDependency(t *testing.T) {
	// The second edit's old string only exists after the first is applied.
	code := "start\n"

	result, applied, err := Apply(code, []Edit{
		{Description: "introduce marker", OldString: "start", NewString: "start marker"},
		{Description: "extend marker", OldString: "start marker", NewString: "start marker end"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if result != "start marker end\n" {
		t.Errorf("unexpected result: %q", result)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied edits, got %d", len(applied))
	}
}

func TestApply_FailureDiscardsPartialProgress(t *testing.T) {
	code := "alpha\nbeta\n"

	result, _, err := Apply(code, []Edit{
		{Description: "ok", OldString: "alpha", NewString: "ALPHA"},
		{Description: "missing", OldString: "gamma", NewString: "GAMMA"},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var patchErr *Error
	if !errors.As(err, &patchErr) {
		t.Fatalf("expected *patch.Error, got %T", err)
	}
	if patchErr.EditIndex != 2 {
		t.Errorf("expected failing edit index 2, got %d", patchErr.EditIndex)
	}

	// The first edit must not leak into the returned buffer.
	if result != code {
		t.Errorf("expected original code back, got %q", result)
	}
}

func TestApply_SurroundingTextUntouched(t *testing.T) {
	code := "prefix [target] suffix"

	result, _, err := Apply(code, []Edit{
		{Description: "swap", OldString: "[target]", NewString: "[replaced]"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if result != "prefix [replaced] suffix" {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestApply_EmptyEditList(t *testing.T) {
	code := "unchanged"

	result, applied, err := Apply(code, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result != code {
		t.Errorf("expected unchanged code, got %q", result)
	}
	if len(applied) != 0 {
		t.Errorf("expected no applied edits, got %d", len(applied))
	}
}
