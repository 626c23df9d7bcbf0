package unified

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// FlattenContent reduces wire content to one string. Strings pass through,
// arrays keep their text parts joined by newlines, null and absent content
// become empty, and any other value is kept as its JSON text.
func FlattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	value := gjson.ParseBytes(raw)
	switch {
	case value.Type == gjson.String:
		return value.String()
	case value.Type == gjson.Null:
		return ""
	case value.IsArray():
		var texts []string
		value.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				texts = append(texts, part.Get("text").String())
			}
			return true
		})
		return strings.Join(texts, "\n")
	default:
		return value.Raw
	}
}
