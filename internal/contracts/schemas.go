package contracts

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// базовый URL ресурсов компилятора, чтобы $ref между схемами разрешались без файловой системы
const resourceBase = "https://fedresurs-radar.local/schemas/"

// суффикс имени контракта по корневому каталогу схем
var kindSuffix = map[string]string{
	"events":   "Event",
	"registry": "Response",
}

// Registry - скомпилированные JSON-схемы, ключ вида "LotCreatedEvent/1.0.0"
type Registry struct {
	schemas map[string]*jsonschema.Schema
}

// NewRegistry компилирует все схемы из fsys
func NewRegistry(fsys fs.FS) (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	var paths []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		file, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		if err := compiler.AddResource(resourceBase+path, file); err != nil {
			return fmt.Errorf("failed to add schema resource %s: %w", path, err)
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking schema resources: %w", err)
	}

	r := &Registry{schemas: make(map[string]*jsonschema.Schema, len(paths))}
	for _, path := range paths {
		key := KeyFromPath(path)
		if key == "" {
			continue
		}
		schema, err := compiler.Compile(resourceBase + path)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", path, err)
		}
		r.schemas[key] = schema
	}
	return r, nil
}

// KeyFromPath преобразует "events/lot-created/v1.json" в "LotCreatedEvent/1.0.0".
// Для путей другой формы возвращает пустую строку.
func KeyFromPath(path string) string {
	parts := strings.Split(strings.TrimSuffix(path, ".json"), "/")
	if len(parts) != 3 {
		return ""
	}
	suffix, ok := kindSuffix[parts[0]]
	if !ok || !strings.HasPrefix(parts[2], "v") {
		return ""
	}

	caser := cases.Title(language.English)
	var name strings.Builder
	for _, p := range strings.Split(parts[1], "-") {
		name.WriteString(caser.String(p))
	}
	name.WriteString(suffix)

	return fmt.Sprintf("%s/%s.0.0", name.String(), strings.TrimPrefix(parts[2], "v"))
}

// Has сообщает, зарегистрирована ли схема
func (r *Registry) Has(name, version string) bool {
	_, ok := r.schemas[name+"/"+version]
	return ok
}

// Validate проверяет JSON-тело по схеме name/version
func (r *Registry) Validate(name, version string, body []byte) error {
	schema, ok := r.schemas[name+"/"+version]
	if !ok {
		return fmt.Errorf("schema '%s' version '%s' not found", name, version)
	}

	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("body is not a valid JSON: %w", err)
	}

	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("JSON schema validation failed: %w", err)
	}
	return nil
}
