package tool

import (
	"testing"
)

func TestDescriptorsExposeFixedTools(t *testing.T) {
	t.Parallel()

	infos := Descriptors()
	if len(infos) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(infos))
	}
	if infos[0].Name != ToolCreateCustomer {
		t.Fatalf("unexpected first tool: %s", infos[0].Name)
	}
	if infos[1].Name != ToolGetAddressByZipcode {
		t.Fatalf("unexpected second tool: %s", infos[1].Name)
	}

	required, ok := infos[0].InputSchema["required"].([]string)
	if !ok {
		t.Fatalf("required has type %T", infos[0].InputSchema["required"])
	}
	if len(required) != 3 || required[0] != "email" || required[1] != "name" || required[2] != "phone" {
		t.Fatalf("unexpected required fields: %v", required)
	}

	props := infos[0].InputSchema["properties"].(map[string]any)
	if len(props) != 21 {
		t.Fatalf("expected 21 customer properties, got %d", len(props))
	}
	listIDs := props["list_ids"].(map[string]any)
	if listIDs["type"] != "number" {
		t.Fatalf("list_ids type = %v", listIDs["type"])
	}
}
