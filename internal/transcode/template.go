package transcode

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
)

//go:embed job_settings.json
var defaultSettings []byte

// Template holds the raw job settings document. Every call to Settings
// decodes a new copy, so callers can mutate the result freely.
type Template struct {
	raw []byte
}

// DefaultTemplate returns the built-in single HLS output group template.
func DefaultTemplate() *Template {
	return &Template{raw: defaultSettings}
}

// LoadTemplate reads a settings document from path. An empty path yields the
// default template.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job settings %s: %w", path, err)
	}
	tpl := &Template{raw: raw}
	if _, err := tpl.Settings(); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Settings decodes a fresh settings document.
func (t *Template) Settings() (Settings, error) {
	var settings Settings
	dec := json.NewDecoder(bytes.NewReader(t.raw))
	dec.UseNumber()
	if err := dec.Decode(&settings); err != nil {
		return nil, fmt.Errorf("decode job settings: %w", err)
	}
	return settings, nil
}

// Settings is a decoded MediaConvert JobSettings document.
type Settings map[string]any

// SetDestination points the first output group's HLS settings at destination.
func (s Settings) SetDestination(destination string) error {
	group, err := s.first("OutputGroups")
	if err != nil {
		return err
	}
	groupSettings, ok := group["OutputGroupSettings"].(map[string]any)
	if !ok {
		return fmt.Errorf("job settings: OutputGroups[0].OutputGroupSettings missing")
	}
	hls, ok := groupSettings["HlsGroupSettings"].(map[string]any)
	if !ok {
		return fmt.Errorf("job settings: OutputGroups[0] has no HlsGroupSettings")
	}
	hls["Destination"] = destination
	return nil
}

// SetFileInput sets the first input's source location.
func (s Settings) SetFileInput(location string) error {
	input, err := s.first("Inputs")
	if err != nil {
		return err
	}
	input["FileInput"] = location
	return nil
}

// Destination returns the first output group's HLS destination.
func (s Settings) Destination() string {
	group, err := s.first("OutputGroups")
	if err != nil {
		return ""
	}
	groupSettings, _ := group["OutputGroupSettings"].(map[string]any)
	hls, _ := groupSettings["HlsGroupSettings"].(map[string]any)
	value, _ := hls["Destination"].(string)
	return value
}

// FileInput returns the first input's source location.
func (s Settings) FileInput() string {
	input, err := s.first("Inputs")
	if err != nil {
		return ""
	}
	value, _ := input["FileInput"].(string)
	return value
}

// JobSettings converts the document into the SDK representation.
func (s Settings) JobSettings() (*types.JobSettings, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode job settings: %w", err)
	}
	var out types.JobSettings
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("convert job settings: %w", err)
	}
	return &out, nil
}

func (s Settings) first(field string) (map[string]any, error) {
	list, ok := s[field].([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("job settings: %s is empty", field)
	}
	entry, ok := list[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("job settings: %s[0] is not an object", field)
	}
	return entry, nil
}
