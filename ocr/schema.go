package ocr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ExtractJSON returns the JSON document inside text, stripping a surrounding
// markdown code fence if the model added one.
func ExtractJSON(text string) []byte {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
		if nl := strings.IndexByte(t, '\n'); nl >= 0 {
			t = t[nl+1:]
		}
		t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	}
	return []byte(strings.TrimSpace(t))
}

// ValidateJSON checks that extracted text is JSON matching schema.
func ValidateJSON(text string, schema []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(ExtractJSON(text), &v); err != nil {
		return fmt.Errorf("result is not JSON: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
