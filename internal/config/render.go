/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"sigs.k8s.io/yaml"
)

// funcMap is sprig plus the helm-style toYaml.
func funcMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["toYaml"] = toYaml
	return funcs
}

func toYaml(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// RenderStrict renders a text template against data. Referencing a key that
// is not in data is an error instead of an empty string.
func RenderStrict(name, text string, data map[string]any) (string, error) {
	tmpl, err := template.New(name).
		Funcs(funcMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("could not parse template %s: %w", name, err)
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("could not render template %s: %w", name, err)
	}
	return out.String(), nil
}
