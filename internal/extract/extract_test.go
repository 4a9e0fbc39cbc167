package extract

import (
	"encoding/json"
	"errors"
	"testing"
)

func parse(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal test JSON: %v", err)
	}
	return v
}

func TestExtract_arrayIndexPath(t *testing.T) {
	v := parse(t, `{"data":[{"url":"X"}]}`)
	got, err := Extract(v, "data.0.url")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got != "X" {
		t.Errorf("got %v, want X", got)
	}
}

func TestExtract_nestedObject(t *testing.T) {
	v := parse(t, `{"choices":[{"message":{"content":"hello"}}]}`)
	got, err := Extract(v, "choices.0.message.content")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %v, want hello", got)
	}
}

func TestExtract_missingKey(t *testing.T) {
	v := parse(t, `{}`)
	_, err := Extract(v, "data.0.url")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	if nfe.Segment != "data" {
		t.Errorf("failing segment = %q, want data", nfe.Segment)
	}
	if nfe.Path != "data.0.url" {
		t.Errorf("path = %q, want data.0.url", nfe.Path)
	}
}

func TestExtract_indexOutOfRange(t *testing.T) {
	v := parse(t, `{"data":[]}`)
	_, err := Extract(v, "data.0.url")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	if nfe.Segment != "0" {
		t.Errorf("failing segment = %q, want 0", nfe.Segment)
	}
}

func TestExtract_indexingNonArray(t *testing.T) {
	v := parse(t, `{"data":{"url":"X"}}`)
	_, err := Extract(v, "data.0.url")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
}

func TestExtract_keyingNonObject(t *testing.T) {
	v := parse(t, `{"data":"scalar"}`)
	_, err := Extract(v, "data.url")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	if nfe.Segment != "url" {
		t.Errorf("failing segment = %q, want url", nfe.Segment)
	}
}

func TestExtract_numericObjectKeyTreatedAsIndex(t *testing.T) {
	// A purely numeric segment always indexes; an object at that position
	// is a type mismatch even if it happens to have a "0" key.
	v := parse(t, `{"data":{"0":"zero"}}`)
	_, err := Extract(v, "data.0")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
}

func TestExtract_emptyPath(t *testing.T) {
	v := parse(t, `{"a":1}`)
	if _, err := Extract(v, ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestExtract_wholeValue(t *testing.T) {
	v := parse(t, `{"a":{"b":[1,2,3]}}`)
	got, err := Extract(v, "a.b.2")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got != float64(3) {
		t.Errorf("got %v, want 3", got)
	}
}
