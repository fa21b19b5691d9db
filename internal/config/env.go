/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const envPrefix = "BEAVERCDS_"

// Splitting variable names on "_" works for most keys, but a few settings have
// underscores in their own names. These undo the split for those keys.
var envKeyFixups = strings.NewReplacer(
	"frontend.", "frontend_",
	"challenges.", "challenges_",
	"s3.access.", "s3.access_",
	"s3.secret.", "s3.secret_",
	"bucket.name", "bucket_name",
	"tag.format", "tag_format",
	"flag.regex", "flag_regex",
)

type envOverride struct {
	env   string
	path  []string
	value *yaml.Node
}

// envOverrides collects BEAVERCDS_ variables as config paths, sorted so that
// overlapping keys are applied in a stable order.
func envOverrides(environ []string) []envOverride {
	var out []envOverride
	for _, kv := range environ {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}

		key := strings.TrimPrefix(name, envPrefix)
		if key == "" {
			continue
		}
		dotted := strings.ReplaceAll(strings.ToLower(key), "_", ".")
		dotted = envKeyFixups.Replace(dotted)

		out = append(out, envOverride{env: name, path: strings.Split(dotted, "."), value: scalarValue(raw)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].env < out[j].env })
	return out
}

// scalarValue wraps raw as an untagged plain scalar. String fields decode it
// verbatim; bool and int fields still resolve it.
func scalarValue(raw string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: raw}
}

// setPath sets value at the nested key path, creating maps along the way.
func setPath(tree map[string]any, path []string, value any) error {
	cur := tree
	for i, key := range path {
		if i == len(path)-1 {
			cur[key] = value
			return nil
		}

		next, exists := cur[key]
		if !exists || next == nil {
			m := map[string]any{}
			cur[key] = m
			cur = m
			continue
		}

		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("key %q is not a mapping", strings.Join(path[:i+1], "."))
		}
		cur = m
	}
	return nil
}
