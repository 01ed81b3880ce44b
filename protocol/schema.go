package protocol

import (
	"github.com/invopop/jsonschema"
)

// JSONSchema 名单项在线上是 [name, id] 二元组
func (PlayerEntry) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Description: "[name, id] pair",
	}
}

// Schema 生成全部消息变体的 JSON Schema（oneOf，按 type 常量区分）
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Battl3ship wire message",
		Description: "Body of one length-prefixed frame.",
	}
	for _, kind := range Kinds {
		m, _ := New(kind)
		s := reflector.Reflect(m)
		s.Version = ""
		s.Title = string(kind)
		s.Properties.Set("type", &jsonschema.Schema{Type: "string", Const: string(kind)})
		s.Required = append([]string{"type"}, s.Required...)
		root.OneOf = append(root.OneOf, s)
	}
	return root
}
