package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/user/synapse/internal/engine"
)

func TestDocumentRetrievalName(t *testing.T) {
	d := NewDocumentRetrieval(nil)
	if d.Name() != engine.RetrievalToolName {
		t.Errorf("tool name %q does not match the registered retrieval name", d.Name())
	}
}

func TestDocumentRetrievalArgValidation(t *testing.T) {
	d := NewDocumentRetrieval(nil)

	cases := []struct {
		name string
		args string
	}{
		{"missing file_path", `{"query":"q"}`},
		{"missing query", `{"file_path":"/tmp/x.pdf"}`},
		{"malformed json", `{"file_path":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := d.Execute(context.Background(), json.RawMessage(tc.args)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
