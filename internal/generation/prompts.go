package generation

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// promptTemplate is one named stage prompt: a fixed system message and a
// parsed user-message template.
type promptTemplate struct {
	name   string
	system string
	user   *template.Template
}

// promptRegistry holds the parsed stage templates keyed by name.
type promptRegistry struct {
	templates map[string]*promptTemplate
}

// promptFile mirrors the embedded prompts.yaml structure.
type promptFile struct {
	Templates []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		System      string `yaml:"system"`
		User        string `yaml:"user"`
	} `yaml:"templates"`
}

// loadPrompts parses the embedded prompt definitions. Called once at
// service construction; a malformed registry is a startup error, not a
// runtime one.
func loadPrompts() (*promptRegistry, error) {
	var file promptFile
	if err := yaml.Unmarshal(promptsYAML, &file); err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt registry: %v", ErrInvalidConfig, err)
	}

	registry := &promptRegistry{templates: make(map[string]*promptTemplate, len(file.Templates))}
	for _, entry := range file.Templates {
		if entry.Name == "" || entry.System == "" || entry.User == "" {
			return nil, fmt.Errorf("%w: prompt %q is missing a name, system, or user section",
				ErrInvalidConfig, entry.Name)
		}

		userTmpl, err := template.New(entry.Name).Option("missingkey=error").Parse(entry.User)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse prompt %q: %v",
				ErrInvalidConfig, entry.Name, err)
		}

		registry.templates[entry.Name] = &promptTemplate{
			name:   entry.Name,
			system: entry.System,
			user:   userTmpl,
		}
	}

	return registry, nil
}

// render produces the system and user prompts for the named template with
// the given variables.
func (r *promptRegistry) render(name string, vars any) (systemPrompt, userPrompt string, err error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown prompt template %q", ErrInvalidConfig, name)
	}

	var buf bytes.Buffer
	if err := tmpl.user.Execute(&buf, vars); err != nil {
		return "", "", fmt.Errorf("failed to render prompt %q: %w", name, err)
	}

	return tmpl.system, buf.String(), nil
}
