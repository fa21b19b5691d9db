/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ChallengeFile is the per-challenge config file, found at <category>/<name>/.
const ChallengeFile = "challenge.yaml"

type ChallengeConfig struct {
	Name        string    `yaml:"name"`
	Author      string    `yaml:"author"`
	Description string    `yaml:"description"`
	Difficulty  int       `yaml:"difficulty"`
	Flag        Flag      `yaml:"flag"`
	Provide     []Provide `yaml:"provide"`
	Pods        []Pod     `yaml:"pods"`

	// Category is the parent directory of the challenge.
	Category string `yaml:"-"`
	// Directory is the challenge path relative to Root, as <category>/<name>.
	// It uniquely identifies the challenge.
	Directory string `yaml:"-"`
	// Root is the repository root the challenge was loaded from.
	Root string `yaml:"-"`
}

// Dir is the on-disk path of the challenge directory.
func (c *ChallengeConfig) Dir() string {
	return filepath.Join(c.Root, filepath.FromSlash(c.Directory))
}

// Path resolves a path relative to the challenge directory.
func (c *ChallengeConfig) Path(rel string) string {
	return filepath.Join(c.Dir(), filepath.FromSlash(rel))
}

// Slug is the challenge directory as a single dns-safe label,
// e.g. pwn/notsh -> pwn-notsh.
func (c *ChallengeConfig) Slug() string {
	return slugify(c.Directory)
}

// NameSlug is the challenge name (last directory segment) as a dns-safe label.
func (c *ChallengeConfig) NameSlug() string {
	return slugify(filepath.Base(filepath.FromSlash(c.Directory)))
}

// Pod looks up a pod by name.
func (c *ChallengeConfig) Pod(name string) (*Pod, bool) {
	for i := range c.Pods {
		if c.Pods[i].Name == name {
			return &c.Pods[i], true
		}
	}
	return nil, false
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

type Pod struct {
	Name      string       `yaml:"name"`
	Image     ImageSource  `yaml:"-"`
	Env       KeyValues    `yaml:"env"`
	Resources *Resource    `yaml:"resources"`
	Replicas  int          `yaml:"replicas"`
	Ports     []PortConfig `yaml:"ports"`
	Volume    string       `yaml:"volume"`
}

// ImageSource is where a pod's image comes from: built from source in this
// repo, or an existing upstream image. Exactly one is set.
type ImageSource struct {
	Build *BuildSpec
	Image string
}

func (s ImageSource) IsBuild() bool { return s.Build != nil }

type BuildSpec struct {
	Context    string
	Dockerfile string
	Args       KeyValues
}

func (b *BuildSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*b = BuildSpec{Context: node.Value, Dockerfile: "Dockerfile"}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Context    string    `yaml:"context"`
			Dockerfile string    `yaml:"dockerfile"`
			Args       KeyValues `yaml:"args"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if raw.Context == "" {
			return fmt.Errorf("line %d: build is missing context", node.Line)
		}
		if raw.Dockerfile == "" {
			raw.Dockerfile = "Dockerfile"
		}
		*b = BuildSpec{Context: raw.Context, Dockerfile: raw.Dockerfile, Args: raw.Args}
		return nil
	}
	return fmt.Errorf("line %d: build must be a path or a mapping", node.Line)
}

func (p *Pod) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name      string       `yaml:"name"`
		Build     *BuildSpec   `yaml:"build"`
		Image     string       `yaml:"image"`
		Env       KeyValues    `yaml:"env"`
		Resources *Resource    `yaml:"resources"`
		Replicas  int          `yaml:"replicas"`
		Ports     []PortConfig `yaml:"ports"`
		Volume    string       `yaml:"volume"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Name == "" {
		return fmt.Errorf("line %d: pod is missing name", node.Line)
	}
	if (raw.Build == nil) == (raw.Image == "") {
		return fmt.Errorf("line %d: pod %q must set exactly one of build or image", node.Line, raw.Name)
	}
	if raw.Replicas == 0 {
		raw.Replicas = 1
	}

	*p = Pod{
		Name:      raw.Name,
		Image:     ImageSource{Build: raw.Build, Image: raw.Image},
		Env:       raw.Env,
		Resources: raw.Resources,
		Replicas:  raw.Replicas,
		Ports:     raw.Ports,
		Volume:    raw.Volume,
	}
	return nil
}

type PortConfig struct {
	Internal int    `yaml:"internal"`
	Expose   Expose `yaml:"expose"`
}

// Expose is how a port is reachable from outside the cluster: a raw TCP port
// or an HTTP(S) subdomain. Exactly one is set.
type Expose struct {
	TCP  int
	HTTP string
}

func (e Expose) IsTCP() bool { return e.TCP != 0 }

func (e *Expose) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		TCP  *int    `yaml:"tcp"`
		HTTP *string `yaml:"http"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch {
	case raw.TCP != nil && raw.HTTP != nil:
		return fmt.Errorf("line %d: expose must set only one of tcp or http", node.Line)
	case raw.TCP != nil:
		if *raw.TCP <= 0 || *raw.TCP > 65535 {
			return fmt.Errorf("line %d: tcp port %d out of range", node.Line, *raw.TCP)
		}
		*e = Expose{TCP: *raw.TCP}
	case raw.HTTP != nil:
		if *raw.HTTP == "" {
			return fmt.Errorf("line %d: http subdomain is empty", node.Line)
		}
		*e = Expose{HTTP: *raw.HTTP}
	default:
		return fmt.Errorf("line %d: expose must set one of tcp or http", node.Line)
	}
	return nil
}

// KeyValues is a list of KEY=value pairs, written in yaml as either a list of
// "KEY=value" strings or a mapping.
type KeyValues []KeyValue

type KeyValue struct {
	Name  string
	Value string
}

func (kv *KeyValues) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		out := make(KeyValues, 0, len(list))
		for _, item := range list {
			name, value, _ := strings.Cut(item, "=")
			out = append(out, KeyValue{Name: name, Value: value})
		}
		*kv = out
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		out := make(KeyValues, 0, len(m))
		for name, value := range m {
			out = append(out, KeyValue{Name: name, Value: value})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		*kv = out
	default:
		return fmt.Errorf("line %d: expected a list or mapping", node.Line)
	}
	return nil
}

// Map returns the pairs as a map; later duplicates win.
func (kv KeyValues) Map() map[string]string {
	m := make(map[string]string, len(kv))
	for _, v := range kv {
		m[v.Name] = v.Value
	}
	return m
}

// LoadChallenges parses every challenge.yaml exactly two directories below
// root. Parse failures are collected and returned together.
func LoadChallenges(root string) ([]*ChallengeConfig, error) {
	paths, err := filepath.Glob(filepath.Join(root, "*", "*", ChallengeFile))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var chals []*ChallengeConfig
	var errs []error
	for _, path := range paths {
		chal, err := ParseChallenge(root, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to parse challenge config %s: %w", path, err))
			continue
		}
		chals = append(chals, chal)
	}

	log.Debugf("parsed %d chals, %d others failed parsing", len(chals), len(errs))
	if len(errs) > 0 {
		return nil, &ValidationError{Errs: errs}
	}
	return chals, nil
}

// ParseChallenge parses a single challenge.yaml located under root.
func ParseChallenge(root, path string) (*ChallengeConfig, error) {
	log.Tracef("trying to parse %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var chal ChallengeConfig
	if err := yaml.Unmarshal(data, &chal); err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	chal.Root = root
	chal.Directory = filepath.ToSlash(rel)
	chal.Category = filepath.Base(filepath.Dir(rel))

	if chal.Name == "" {
		return nil, errors.New("challenge is missing name")
	}
	seen := map[string]bool{}
	for _, p := range chal.Pods {
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate pod name %q", p.Name)
		}
		seen[p.Name] = true
	}
	for _, p := range chal.Provide {
		if p.FromContainer() {
			if _, ok := chal.Pod(p.Container); !ok {
				return nil, fmt.Errorf("provide references unknown container %q", p.Container)
			}
		}
	}

	return &chal, nil
}
