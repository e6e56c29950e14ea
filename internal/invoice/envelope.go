package invoice

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Status keys the model is asked to return, plus the camelCase spellings some models prefer
var (
	startKeys        = []string{"is_start_of_invoice", "isStart"}
	continuationKeys = []string{"is_continuation", "isContinuation"}
	endKeys          = []string{"is_end_of_invoice", "isEnd"}
	blankKeys        = []string{"is_blank_or_misc", "isBlank"}
)

const pageSchemaJSON = `{
  "type": "object",
  "properties": {
    "status": {
      "type": ["object", "null"],
      "properties": {
        "is_start_of_invoice": {"type": ["boolean", "null"]},
        "is_continuation":     {"type": ["boolean", "null"]},
        "is_end_of_invoice":   {"type": ["boolean", "null"]},
        "is_blank_or_misc":    {"type": ["boolean", "null"]},
        "isStart":             {"type": ["boolean", "null"]},
        "isContinuation":      {"type": ["boolean", "null"]},
        "isEnd":               {"type": ["boolean", "null"]},
        "isBlank":             {"type": ["boolean", "null"]}
      }
    },
    "data": {
      "type": ["object", "null"],
      "properties": {
        "lineItems": {
          "type": ["array", "null"],
          "items": {"type": ["object", "string"]}
        }
      }
    }
  }
}`

var pageSchema = compilePageSchema()

func compilePageSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("page.json", strings.NewReader(pageSchemaJSON)); err != nil {
		panic(fmt.Sprintf("adding page schema: %v", err))
	}
	return compiler.MustCompile("page.json")
}

// DecodePage validates the {"status": {...}, "data": {...}} envelope and maps it to a PageClassification.
// A missing status object means every flag is false; a missing data object means no fields.
func DecodePage(obj map[string]any) (PageClassification, error) {
	if err := pageSchema.Validate(obj); err != nil {
		return PageClassification{}, fmt.Errorf("page envelope does not match schema: %s", truncate(err.Error(), snippetLimit))
	}

	status, _ := obj["status"].(map[string]any)
	data, _ := obj["data"].(map[string]any)

	page := PageClassification{
		IsStart:        flag(status, startKeys),
		IsContinuation: flag(status, continuationKeys),
		IsEnd:          flag(status, endKeys),
		IsBlank:        flag(status, blankKeys),
		Fields:         make(map[string]any, len(data)),
		LineItems:      lineItemsFrom(data[FieldLineItems]),
	}
	for k, v := range data {
		if k == FieldLineItems {
			continue
		}
		page.Fields[k] = v
	}
	return page, nil
}

func flag(status map[string]any, keys []string) bool {
	for _, k := range keys {
		if v, ok := status[k].(bool); ok && v {
			return true
		}
	}
	return false
}

// lineItemsFrom converts a decoded lineItems array. Bare strings become {"description": s}.
func lineItemsFrom(v any) []LineItem {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	items := make([]LineItem, 0, len(raw))
	for _, entry := range raw {
		switch t := entry.(type) {
		case map[string]any:
			items = append(items, LineItem(t))
		case string:
			items = append(items, LineItem{"description": t})
		}
	}
	return items
}
