// Package registry provides the built-in node kind catalog.
package registry

import (
	"context"
	"fmt"
	"strconv"

	"github.com/artistscloud/a9ents-sub000/pkg/capabilities"
	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/template"
)

// Built-in node kinds.
const (
	KindInput           = "input"
	KindOutput          = "output"
	KindText            = "text"
	KindLLMGenerate     = "llm-generate"
	KindKBRead          = "kb-read"
	KindKBWrite         = "kb-write"
	KindKBSearch        = "kb-search"
	KindCondition       = "logic-condition"
	KindTransform       = "transform"
	KindHTTPRequest     = "http-request"
	KindScrape          = "scrape"
	KindMerge           = "merge"
	KindTriggerManual   = "trigger:manual"
	KindTriggerWebhook  = "trigger:webhook"
	KindTriggerSchedule = "trigger:schedule"
	KindTriggerKafka    = "trigger:kafka"
)

// Well-known port names.
const (
	PortTrigger = "trigger" // implicit input delivered to entry kinds
	PortValue   = "value"
	PortPayload = "payload"
	PortPrompt  = "prompt"
	PortText    = "text"
	PortKey     = "key"
	PortContent = "content"
	PortQuery   = "query"
	PortResults = "results"
	PortTrue    = "true"
	PortFalse   = "false"
	PortStatus  = "status"
	PortBody    = "body"
	PortURL     = "url"
	PortTitle   = "title"
	PortWritten = "written"
	PortMerged  = "merged"
	PortFirst   = "first"
	PortSecond  = "second"
	PortThird   = "third"
)

// CapabilitySet carries the external collaborators the built-in kinds bind
// to. Every field must be set; tests inject fakes.
type CapabilitySet struct {
	Generate  capabilities.GenerateFunc
	Knowledge capabilities.KnowledgeStore
	Scrape    capabilities.ScrapeFunc
	HTTPCall  capabilities.HTTPCallFunc
}

// RegisterDefaults registers all built-in node kinds with the registry.
func RegisterDefaults(r *Registry, caps CapabilitySet) {
	registerEntryKinds(r)
	registerTextKinds(r, caps)
	registerKnowledgeKinds(r, caps)
	registerLogicKinds(r)
	registerIntegrationKinds(r, caps)
}

func registerEntryKinds(r *Registry) {
	passPayload := func(_ context.Context, _ *models.Node, inputs map[string]any) (map[string]any, error) {
		payload, _ := inputs[PortTrigger].(map[string]any)
		if payload == nil {
			payload = map[string]any{}
		}

		return map[string]any{PortPayload: payload}, nil
	}

	r.Register(models.NodeType{
		Kind:         KindInput,
		Name:         "Input",
		Description:  "Entry node exposing the triggering payload, or a configured default value, to the graph.",
		OutputPorts:  []models.PortSpec{{Name: PortValue, Type: models.DataTypeAny}},
		ConfigSchema: objectSchema(nil, nil),
		Entry:        true,
	}, func(_ context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		value, ok := inputs[PortTrigger]
		if !ok || value == nil {
			value = node.Config["value"]
		}

		return map[string]any{PortValue: value}, nil
	})

	r.Register(models.NodeType{
		Kind:         KindTriggerManual,
		Name:         "Manual Trigger",
		Description:  "Starts a run when invoked explicitly through the API.",
		OutputPorts:  []models.PortSpec{{Name: PortPayload, Type: models.DataTypeJSON}},
		ConfigSchema: objectSchema(nil, nil),
		Entry:        true,
	}, passPayload)

	r.Register(models.NodeType{
		Kind:        KindTriggerWebhook,
		Name:        "Webhook Trigger",
		Description: "Starts a run from an inbound webhook delivery (method, path, headers, body).",
		OutputPorts: []models.PortSpec{{Name: PortPayload, Type: models.DataTypeJSON}},
		ConfigSchema: objectSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Optional path suffix the delivery must match."},
		}, nil),
		Entry: true,
	}, passPayload)

	r.Register(models.NodeType{
		Kind:        KindTriggerSchedule,
		Name:        "Schedule Trigger",
		Description: "Starts a run on a cron schedule evaluated by the trigger manager.",
		OutputPorts: []models.PortSpec{{Name: PortPayload, Type: models.DataTypeJSON}},
		ConfigSchema: objectSchema(map[string]any{
			"cron": map[string]any{"type": "string", "description": "Standard five-field cron expression."},
		}, []string{"cron"}),
		Entry: true,
	}, passPayload)

	r.Register(models.NodeType{
		Kind:        KindTriggerKafka,
		Name:        "Kafka Trigger",
		Description: "Starts a run for every message consumed from a Kafka topic.",
		OutputPorts: []models.PortSpec{{Name: PortPayload, Type: models.DataTypeJSON}},
		ConfigSchema: objectSchema(map[string]any{
			"topic": map[string]any{"type": "string"},
		}, []string{"topic"}),
		Entry: true,
	}, passPayload)
}

func registerTextKinds(r *Registry, caps CapabilitySet) {
	r.Register(models.NodeType{
		Kind:        KindText,
		Name:        "Text",
		Description: "Produces a static or templated text value.",
		OutputPorts: []models.PortSpec{{Name: PortText, Type: models.DataTypeText}},
		ConfigSchema: objectSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Text to emit. Supports template expressions over inputs."},
		}, []string{"text"}),
	}, func(_ context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		text, _ := node.Config["text"].(string)

		rendered, err := template.Render(text, templateData(node, inputs))
		if err != nil {
			return nil, capabilities.Errorf(capabilities.ErrorKindProvider, "failed to render text: %v", err)
		}

		return map[string]any{PortText: asString(rendered)}, nil
	})

	r.Register(models.NodeType{
		Kind:        KindLLMGenerate,
		Name:        "Generate Text",
		Description: "Calls the configured LLM provider with the incoming prompt and emits the generated text.",
		InputPorts:  []models.PortSpec{{Name: PortPrompt, Type: models.DataTypeText}},
		OutputPorts: []models.PortSpec{{Name: PortText, Type: models.DataTypeText}},
		ConfigSchema: objectSchema(map[string]any{
			"provider":    map[string]any{"type": "string"},
			"model":       map[string]any{"type": "string"},
			"temperature": map[string]any{"type": "number"},
			"max_tokens":  map[string]any{"type": "integer"},
		}, []string{"provider"}),
	}, func(ctx context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		prompt := asString(inputs[PortPrompt])
		if prompt == "" {
			prompt = asString(node.Config["prompt"])
		}

		provider, _ := node.Config["provider"].(string)
		model, _ := node.Config["model"].(string)

		text, err := caps.Generate(ctx, capabilities.GenerateRequest{
			Provider:    provider,
			Model:       model,
			Prompt:      prompt,
			Temperature: asFloat(node.Config["temperature"]),
			MaxTokens:   asInt(node.Config["max_tokens"]),
		})
		if err != nil {
			return nil, err
		}

		return map[string]any{PortText: text}, nil
	})
}

func registerKnowledgeKinds(r *Registry, caps CapabilitySet) {
	kbSchema := func(extra map[string]any) map[string]any {
		props := map[string]any{
			"knowledge_base": map[string]any{"type": "string"},
		}
		for k, v := range extra {
			props[k] = v
		}

		return objectSchema(props, []string{"knowledge_base"})
	}

	r.Register(models.NodeType{
		Kind:         KindKBRead,
		Name:         "Knowledge Read",
		Description:  "Reads a document from a knowledge base by key.",
		InputPorts:   []models.PortSpec{{Name: PortKey, Type: models.DataTypeText}},
		OutputPorts:  []models.PortSpec{{Name: PortContent, Type: models.DataTypeText}},
		ConfigSchema: kbSchema(nil),
	}, func(ctx context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		kb, _ := node.Config["knowledge_base"].(string)

		content, err := caps.Knowledge.Read(ctx, kb, asString(inputs[PortKey]))
		if err != nil {
			return nil, err
		}

		return map[string]any{PortContent: content}, nil
	})

	r.Register(models.NodeType{
		Kind:        KindKBWrite,
		Name:        "Knowledge Write",
		Description: "Writes a document into a knowledge base under the given key.",
		InputPorts: []models.PortSpec{
			{Name: PortKey, Type: models.DataTypeText},
			{Name: PortContent, Type: models.DataTypeText},
		},
		OutputPorts:  []models.PortSpec{{Name: PortWritten, Type: models.DataTypeJSON}},
		ConfigSchema: kbSchema(nil),
	}, func(ctx context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		kb, _ := node.Config["knowledge_base"].(string)
		key := asString(inputs[PortKey])

		err := caps.Knowledge.Write(ctx, kb, key, asString(inputs[PortContent]))
		if err != nil {
			return nil, err
		}

		return map[string]any{PortWritten: map[string]any{"knowledge_base": kb, "key": key}}, nil
	})

	r.Register(models.NodeType{
		Kind:        KindKBSearch,
		Name:        "Knowledge Search",
		Description: "Searches a knowledge base and emits the matching documents.",
		InputPorts:  []models.PortSpec{{Name: PortQuery, Type: models.DataTypeText}},
		OutputPorts: []models.PortSpec{{Name: PortResults, Type: models.DataTypeJSON}},
		ConfigSchema: kbSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "default": 10},
		}),
	}, func(ctx context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		kb, _ := node.Config["knowledge_base"].(string)

		limit := asInt(node.Config["limit"])
		if limit == 0 {
			limit = 10
		}

		docs, err := caps.Knowledge.Search(ctx, kb, asString(inputs[PortQuery]), limit)
		if err != nil {
			return nil, err
		}

		results := make([]any, 0, len(docs))
		for _, doc := range docs {
			results = append(results, map[string]any{"key": doc.Key, "content": doc.Content})
		}

		return map[string]any{PortResults: results}, nil
	})
}

func registerLogicKinds(r *Registry) {
	r.Register(models.NodeType{
		Kind:        KindCondition,
		Name:        "Condition",
		Description: "Evaluates a boolean expression and routes the incoming value to the true or false branch.",
		InputPorts:  []models.PortSpec{{Name: PortValue, Type: models.DataTypeAny}},
		OutputPorts: []models.PortSpec{
			{Name: PortTrue, Type: models.DataTypeAny},
			{Name: PortFalse, Type: models.DataTypeAny},
		},
		ConfigSchema: objectSchema(map[string]any{
			"expression": map[string]any{"type": "string", "description": "Template expression evaluated for truthiness, e.g. {{gt .value 0}}."},
		}, []string{"expression"}),
		Branch: true,
	}, func(_ context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		expression, _ := node.Config["expression"].(string)

		matched, err := template.EvaluateBool(expression, templateData(node, inputs))
		if err != nil {
			return nil, fmt.Errorf("condition evaluation failed: %w", err)
		}

		port := PortFalse
		if matched {
			port = PortTrue
		}

		return map[string]any{port: inputs[PortValue]}, nil
	})

	r.Register(models.NodeType{
		Kind:        KindTransform,
		Name:        "Transform",
		Description: "Reshapes the incoming value with a template expression.",
		InputPorts:  []models.PortSpec{{Name: PortValue, Type: models.DataTypeAny}},
		OutputPorts: []models.PortSpec{{Name: PortValue, Type: models.DataTypeJSON}},
		ConfigSchema: objectSchema(map[string]any{
			"expression": map[string]any{"type": "string"},
		}, []string{"expression"}),
	}, func(_ context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		expression, _ := node.Config["expression"].(string)

		result, err := template.Render(expression, templateData(node, inputs))
		if err != nil {
			return nil, fmt.Errorf("transformation failed: %w", err)
		}

		return map[string]any{PortValue: result}, nil
	})

	r.Register(models.NodeType{
		Kind:        KindMerge,
		Name:        "Merge",
		Description: "Joins multiple execution paths, proceeding once any input path delivered a value.",
		InputPorts: []models.PortSpec{
			{Name: PortFirst, Type: models.DataTypeAny},
			{Name: PortSecond, Type: models.DataTypeAny},
			{Name: PortThird, Type: models.DataTypeAny},
		},
		OutputPorts:  []models.PortSpec{{Name: PortMerged, Type: models.DataTypeJSON}},
		ConfigSchema: objectSchema(nil, nil),
		Merge:        true,
	}, func(_ context.Context, _ *models.Node, inputs map[string]any) (map[string]any, error) {
		merged := make(map[string]any, len(inputs))
		for port, value := range inputs {
			merged[port] = value
		}

		return map[string]any{PortMerged: merged}, nil
	})
}

func registerIntegrationKinds(r *Registry, caps CapabilitySet) {
	r.Register(models.NodeType{
		Kind:        KindHTTPRequest,
		Name:        "HTTP Request",
		Description: "Performs an outbound HTTP call and emits status and body.",
		InputPorts:  []models.PortSpec{{Name: PortBody, Type: models.DataTypeAny}},
		OutputPorts: []models.PortSpec{
			{Name: PortStatus, Type: models.DataTypeJSON},
			{Name: PortBody, Type: models.DataTypeJSON},
		},
		ConfigSchema: objectSchema(map[string]any{
			"method":  map[string]any{"type": "string", "default": "GET"},
			"url":     map[string]any{"type": "string"},
			"headers": map[string]any{"type": "object"},
			"query":   map[string]any{"type": "object"},
		}, []string{"url"}),
	}, func(ctx context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		method, _ := node.Config["method"].(string)
		target, _ := node.Config["url"].(string)

		resp, err := caps.HTTPCall(ctx, capabilities.HTTPRequest{
			Method:  method,
			URL:     target,
			Headers: asStringMap(node.Config["headers"]),
			Query:   asStringMap(node.Config["query"]),
			Body:    inputs[PortBody],
		})
		if err != nil {
			return nil, err
		}

		return map[string]any{
			PortStatus: resp.StatusCode,
			PortBody:   resp.Body,
		}, nil
	})

	r.Register(models.NodeType{
		Kind:        KindScrape,
		Name:        "Scrape URL",
		Description: "Fetches a URL and emits its title and extracted text.",
		InputPorts:  []models.PortSpec{{Name: PortURL, Type: models.DataTypeText}},
		OutputPorts: []models.PortSpec{
			{Name: PortTitle, Type: models.DataTypeText},
			{Name: PortText, Type: models.DataTypeText},
		},
		ConfigSchema: objectSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Fallback URL when no url input is connected."},
		}, nil),
	}, func(ctx context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
		target := asString(inputs[PortURL])
		if target == "" {
			target, _ = node.Config["url"].(string)
		}

		page, err := caps.Scrape(ctx, target)
		if err != nil {
			return nil, err
		}

		return map[string]any{
			PortTitle: page.Title,
			PortText:  page.Text,
		}, nil
	})

	r.Register(models.NodeType{
		Kind:         KindOutput,
		Name:         "Output",
		Description:  "Terminal node exposing its incoming value as a run output.",
		InputPorts:   []models.PortSpec{{Name: PortValue, Type: models.DataTypeAny}},
		OutputPorts:  []models.PortSpec{{Name: PortValue, Type: models.DataTypeAny}},
		ConfigSchema: objectSchema(nil, nil),
	}, func(_ context.Context, _ *models.Node, inputs map[string]any) (map[string]any, error) {
		return map[string]any{PortValue: inputs[PortValue]}, nil
	})
}

func objectSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{"type": "object"}

	if len(properties) > 0 {
		schema["properties"] = properties
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// templateData exposes inputs by port name plus the node config to template
// expressions.
func templateData(node *models.Node, inputs map[string]any) map[string]any {
	data := make(map[string]any, len(inputs)+1)
	for port, value := range inputs {
		data[port] = value
	}

	data["config"] = node.Config

	return data
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func asInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func asStringMap(value any) map[string]string {
	raw, ok := value.(map[string]any)
	if !ok {
		return nil
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = asString(v)
	}

	return out
}
