package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestScanErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("tesseract: connection refused")
	err := NewEngineUnavailableError("tesseract", 4, cause)

	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}

	wrapped := fmt.Errorf("page processing: %w", err)
	if !IsCode(wrapped, ErrorEngineUnavailable) {
		t.Error("IsCode must see through wrapping")
	}
	if CodeOf(wrapped) != ErrorEngineUnavailable {
		t.Errorf("CodeOf = %s", CodeOf(wrapped))
	}
}

func TestCodeOfForeignError(t *testing.T) {
	if code := CodeOf(fmt.Errorf("plain error")); code != "" {
		t.Errorf("foreign error must have empty code, got %s", code)
	}
	if IsCode(nil, ErrorCorruptDocument) {
		t.Error("nil error matched a code")
	}
}

func TestScanErrorPageIndex(t *testing.T) {
	docErr := NewUnsupportedFormatError("doc-1", "text/plain")
	if docErr.PageIndex != -1 {
		t.Errorf("document-level error must not carry a page, got %d", docErr.PageIndex)
	}

	pageErr := NewEmptyMergeInputError("doc-1", 7)
	if pageErr.PageIndex != 7 {
		t.Errorf("page index lost: %d", pageErr.PageIndex)
	}
}

func TestScanErrorToMap(t *testing.T) {
	err := NewCorruptDocumentError("doc-1", 2, fmt.Errorf("bad xref"))
	m := err.ToMap()

	if m["error_code"] != string(ErrorCorruptDocument) {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["page_index"] != 2 {
		t.Errorf("page_index = %v", m["page_index"])
	}
	if m["cause"] != "bad xref" {
		t.Errorf("cause = %v", m["cause"])
	}

	docErr := NewUnsupportedFormatError("doc-1", "text/plain")
	if _, ok := docErr.ToMap()["page_index"]; ok {
		t.Error("document-level error must not expose a page index")
	}
}
