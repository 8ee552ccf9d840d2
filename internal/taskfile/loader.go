// Package taskfile loads the declarative task document. Parsing works on the
// yaml.v3 node tree rather than decoded maps so that field order is kept and
// duplicate keys are caught, both of which matter for the expression model.
package taskfile

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/capybara-rs/scheduler/internal/domain"
)

const (
	typeTag       = "type"
	valueTag      = "value"
	propertiesTag = "properties"
	itemsTag      = "items"
	sourceTag     = "source"
)

// Result is a loaded document. Tasks that failed validation are reported in
// Errors and excluded from Tasks; a definition error never takes the whole
// document down.
type Result struct {
	Tasks  []*domain.Task
	Errors []*domain.DefinitionError
}

// Load reads and parses the task document at path.
func Load(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	res, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return res, nil
}

// Parse parses a task document. A syntactically broken document is an error;
// per-task validation failures land in Result.Errors.
func Parse(data []byte) (*Result, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}
	root := deref(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping")
	}
	tasksNode := deref(get(root, "tasks"))
	if tasksNode == nil {
		return nil, errors.New("missing 'tasks' key")
	}
	if tasksNode.Kind != yaml.SequenceNode {
		return nil, errors.New("'tasks' must be a sequence")
	}

	res := &Result{}
	seen := make(map[string]bool)
	for _, n := range tasksNode.Content {
		task, err := parseTask(deref(n))
		if err != nil {
			var def *domain.DefinitionError
			if errors.As(err, &def) {
				res.Errors = append(res.Errors, def)
				continue
			}
			return nil, err
		}
		if seen[task.Name] {
			res.Errors = append(res.Errors, &domain.DefinitionError{
				TaskName: task.Name,
				Detail:   "duplicate task name",
			})
			continue
		}
		seen[task.Name] = true
		res.Tasks = append(res.Tasks, task)
	}
	return res, nil
}

func parseTask(n *yaml.Node) (*domain.Task, error) {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, &domain.DefinitionError{Detail: "task must be a mapping"}
	}

	name := scalarValue(get(n, "name"))

	fail := func(path, detail string) error {
		return &domain.DefinitionError{TaskName: name, Path: path, Detail: detail}
	}

	kind := scalarValue(get(n, typeTag))
	if kind == "" {
		return nil, fail("", "missing field 'type'")
	}
	if kind != "http" {
		return nil, fail(typeTag, fmt.Sprintf("unknown task type %q, expected one of [http]", kind))
	}
	if name == "" {
		return nil, fail("", "missing field 'name'")
	}

	method, err := domain.ParseMethod(scalarValue(get(n, "method")))
	if err != nil {
		return nil, fail("method", err.Error())
	}

	rawURL := scalarValue(get(n, "url"))
	if rawURL == "" {
		return nil, fail("", "missing field 'url'")
	}
	urlTemplate, err := domain.ParseTemplate(rawURL)
	if err != nil {
		return nil, fail("url", err.Error())
	}
	// Without env references the URL is fully known now, so its shape can be
	// checked once at load instead of every cycle.
	if !urlTemplate.HasEnvRefs() {
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return nil, fail("url", err.Error())
		}
	}

	task := &domain.Task{
		Name:               name,
		Method:             method,
		URL:                urlTemplate,
		SuccessStatusCodes: []int{200},
	}

	if headersNode := deref(get(n, "headers")); headersNode != nil {
		headers, err := parseHeaders(headersNode, name)
		if err != nil {
			return nil, err
		}
		task.Headers = headers
	}

	if codesNode := deref(get(n, "success_status_codes")); codesNode != nil {
		codes, err := parseStatusCodes(codesNode, name)
		if err != nil {
			return nil, err
		}
		task.SuccessStatusCodes = codes
	}

	if bodyNode := deref(get(n, "body")); bodyNode != nil {
		body, err := parseBody(bodyNode, name)
		if err != nil {
			return nil, err
		}
		task.Body = body
	}

	if schedule := scalarValue(get(n, "schedule")); schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fail("schedule", err.Error())
		}
		task.Schedule = schedule
	}

	if timeout := scalarValue(get(n, "timeout")); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fail("timeout", err.Error())
		}
		if d <= 0 {
			return nil, fail("timeout", "timeout must be positive")
		}
		task.Timeout = d
	}

	return task, nil
}

// parseHeaders parses the headers mapping. Header values are restricted to
// scalar entries: string, integer, float, or source.
func parseHeaders(n *yaml.Node, taskName string) ([]domain.Header, error) {
	if n.Kind != yaml.MappingNode {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: "headers", Detail: "must be a mapping"}
	}
	headers := make([]domain.Header, 0, len(n.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		path := "headers." + key
		if seen[key] {
			return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "duplicate header"}
		}
		seen[key] = true
		value, err := parseScalarEntry(deref(n.Content[i+1]), taskName, path)
		if err != nil {
			return nil, err
		}
		headers = append(headers, domain.Header{Name: key, Value: value})
	}
	return headers, nil
}

func parseStatusCodes(n *yaml.Node, taskName string) ([]int, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, &domain.DefinitionError{
			TaskName: taskName, Path: "success_status_codes", Detail: "must be a sequence",
		}
	}
	codes := make([]int, 0, len(n.Content))
	for _, c := range n.Content {
		var code int
		if err := deref(c).Decode(&code); err != nil || code < 100 || code > 599 {
			return nil, &domain.DefinitionError{
				TaskName: taskName,
				Path:     "success_status_codes",
				Detail:   fmt.Sprintf("invalid status code %q", c.Value),
			}
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		codes = []int{200}
	}
	return codes, nil
}

// parseBody parses `body: {<encoding>: <entry>}`. JSON is the only encoding.
func parseBody(n *yaml.Node, taskName string) (domain.Value, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, &domain.DefinitionError{
			TaskName: taskName, Path: "body", Detail: "must be a mapping with a single encoding key",
		}
	}
	encoding := n.Content[0].Value
	if encoding != "json" {
		return nil, &domain.DefinitionError{
			TaskName: taskName,
			Path:     "body",
			Detail:   fmt.Sprintf("unknown encoding %q, expected one of [json]", encoding),
		}
	}
	return parseEntry(deref(n.Content[1]), taskName, "body.json")
}

// parseEntry parses one expression node: a mapping with a mandatory 'type'
// tag and the payload field that tag requires.
func parseEntry(n *yaml.Node, taskName, path string) (domain.Value, error) {
	fail := func(detail string) error {
		return &domain.DefinitionError{TaskName: taskName, Path: path, Detail: detail}
	}
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, fail("entry must be a mapping")
	}
	kind := scalarValue(get(n, typeTag))
	if kind == "" {
		return nil, fail("missing field 'type'")
	}

	switch kind {
	case "string":
		return parseStringEntry(n, taskName, path)
	case "integer":
		return parseIntegerEntry(n, taskName, path)
	case "float":
		return parseFloatEntry(n, taskName, path)
	case "boolean":
		return parseBooleanEntry(n, taskName, path)
	case "null":
		return domain.NullValue{}, nil
	case "object":
		return parseObjectEntry(n, taskName, path)
	case "array":
		return parseArrayEntry(n, taskName, path)
	case "source":
		return parseSourceEntry(n, taskName, path)
	}
	return nil, fail(fmt.Sprintf(
		"unknown type %q, expected one of [string, integer, float, boolean, null, object, array, source]", kind))
}

// parseScalarEntry parses an expression node in a position where only scalar
// values make sense, such as a header.
func parseScalarEntry(n *yaml.Node, taskName, path string) (domain.Value, error) {
	fail := func(detail string) error {
		return &domain.DefinitionError{TaskName: taskName, Path: path, Detail: detail}
	}
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, fail("entry must be a mapping")
	}
	kind := scalarValue(get(n, typeTag))
	if kind == "" {
		return nil, fail("missing field 'type'")
	}

	switch kind {
	case "string":
		return parseStringEntry(n, taskName, path)
	case "integer":
		return parseIntegerEntry(n, taskName, path)
	case "float":
		return parseFloatEntry(n, taskName, path)
	case "source":
		return parseSourceEntry(n, taskName, path)
	}
	return nil, fail(fmt.Sprintf(
		"unknown type %q, expected one of [string, integer, float, source]", kind))
}

func parseStringEntry(n *yaml.Node, taskName, path string) (domain.Value, error) {
	v := deref(get(n, valueTag))
	if v == nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "missing field 'value'"}
	}
	if v.Kind != yaml.ScalarNode || v.Tag != "!!str" {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "'value' must be a string"}
	}
	t, err := domain.ParseTemplate(v.Value)
	if err != nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: err.Error()}
	}
	// A bare env!(NAME) is a scalar env reference; anything else stays a
	// string template.
	if len(t) == 1 && t[0].IsEnv {
		return domain.EnvValue{Name: t[0].Env}, nil
	}
	return domain.StringValue{Template: t}, nil
}

func parseIntegerEntry(n *yaml.Node, taskName, path string) (domain.Value, error) {
	v := deref(get(n, valueTag))
	if v == nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "missing field 'value'"}
	}
	var i int64
	if v.Kind != yaml.ScalarNode || v.Tag != "!!int" || v.Decode(&i) != nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "'value' must be an integer"}
	}
	return domain.IntegerValue{Literal: i}, nil
}

func parseFloatEntry(n *yaml.Node, taskName, path string) (domain.Value, error) {
	v := deref(get(n, valueTag))
	if v == nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "missing field 'value'"}
	}
	var f float64
	// Integer literals are fine in float position (e.g. `value: 3`).
	if v.Kind != yaml.ScalarNode || (v.Tag != "!!float" && v.Tag != "!!int") || v.Decode(&f) != nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "'value' must be a number"}
	}
	return domain.FloatValue{Literal: f}, nil
}

func parseBooleanEntry(n *yaml.Node, taskName, path string) (domain.Value, error) {
	v := deref(get(n, valueTag))
	if v == nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "missing field 'value'"}
	}
	if v.Kind != yaml.ScalarNode {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "'value' must be a boolean"}
	}
	// Any case spelling is accepted: true, TRUE, False, ... YAML already tags
	// the common ones as !!bool; quoted spellings arrive as strings.
	b, err := domain.ParseBool(v.Value)
	if err != nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: err.Error()}
	}
	return domain.BooleanValue{Literal: b}, nil
}

func parseObjectEntry(n *yaml.Node, taskName, path string) (domain.Value, error) {
	props := deref(get(n, propertiesTag))
	if props == nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "missing field 'properties'"}
	}
	if props.Kind != yaml.MappingNode {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "'properties' must be a mapping"}
	}
	obj := domain.ObjectValue{Properties: make([]domain.Property, 0, len(props.Content)/2)}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(props.Content); i += 2 {
		key := props.Content[i].Value
		childPath := path + "." + key
		if seen[key] {
			return nil, &domain.DefinitionError{TaskName: taskName, Path: childPath, Detail: "duplicate property"}
		}
		seen[key] = true
		child, err := parseEntry(deref(props.Content[i+1]), taskName, childPath)
		if err != nil {
			return nil, err
		}
		obj.Properties = append(obj.Properties, domain.Property{Name: key, Value: child})
	}
	return obj, nil
}

func parseArrayEntry(n *yaml.Node, taskName, path string) (domain.Value, error) {
	items := deref(get(n, itemsTag))
	if items == nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "missing field 'items'"}
	}
	if items.Kind != yaml.SequenceNode {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "'items' must be a sequence"}
	}
	arr := domain.ArrayValue{Items: make([]domain.Value, 0, len(items.Content))}
	for i, item := range items.Content {
		child, err := parseEntry(deref(item), taskName, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, child)
	}
	return arr, nil
}

func parseSourceEntry(n *yaml.Node, taskName, path string) (domain.Value, error) {
	raw := scalarValue(get(n, sourceTag))
	if raw == "" {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: "missing field 'source'"}
	}
	src, err := domain.ParseSource(raw)
	if err != nil {
		return nil, &domain.DefinitionError{TaskName: taskName, Path: path, Detail: err.Error()}
	}
	return domain.SourceValue{Source: src}, nil
}

// get returns the value node for key in a mapping, or nil.
func get(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// deref follows YAML alias nodes.
func deref(n *yaml.Node) *yaml.Node {
	if n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		return n.Alias
	}
	return n
}

func scalarValue(n *yaml.Node) string {
	n = deref(n)
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return n.Value
}
