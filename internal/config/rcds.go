/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the global config file name, found at the repository root.
const ConfigFile = "rcds.yaml"

type UserPass struct {
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// Empty is true if no credentials were configured.
func (u UserPass) Empty() bool {
	return u.User == "" && u.Pass == ""
}

type Registry struct {
	Domain    string   `yaml:"domain"`
	TagFormat string   `yaml:"tag_format"`
	Build     UserPass `yaml:"build"`
	Cluster   UserPass `yaml:"cluster"`
}

// UnmarshalYAML accepts a top-level user/pass pair as shorthand for setting
// both the build and cluster credentials.
func (r *Registry) UnmarshalYAML(node *yaml.Node) error {
	type plain Registry
	var raw struct {
		plain `yaml:",inline"`
		User  string `yaml:"user"`
		Pass  string `yaml:"pass"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	*r = Registry(raw.plain)
	if raw.User != "" || raw.Pass != "" {
		shared := UserPass{User: raw.User, Pass: raw.Pass}
		if r.Build.Empty() {
			r.Build = shared
		}
		if r.Cluster.Empty() {
			r.Cluster = shared
		}
	}
	return nil
}

// Quantity is a Kubernetes resource quantity, kept as written ("1", "500m", "1Gi").
type Quantity string

func (q *Quantity) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: resource quantity must be a scalar", node.Line)
	}
	*q = Quantity(node.Value)
	return nil
}

type Resource struct {
	CPU    Quantity `yaml:"cpu"`
	Memory Quantity `yaml:"memory"`
}

type Defaults struct {
	Difficulty int      `yaml:"difficulty"`
	Resources  Resource `yaml:"resources"`
}

type ChallengePoints struct {
	Difficulty int `yaml:"difficulty"`
	Min        int `yaml:"min"`
	Max        int `yaml:"max"`
}

type S3Config struct {
	BucketName string `yaml:"bucket_name"`
	Endpoint   string `yaml:"endpoint"`
	Region     string `yaml:"region"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
}

type ProfileConfig struct {
	FrontendURL      string         `yaml:"frontend_url"`
	FrontendToken    string         `yaml:"frontend_token"`
	ChallengesDomain string         `yaml:"challenges_domain"`
	Kubeconfig       string         `yaml:"kubeconfig"`
	Kubecontext      string         `yaml:"kubecontext"`
	S3               S3Config       `yaml:"s3"`
	DNS              map[string]any `yaml:"dns"`
}

type RcdsConfig struct {
	FlagRegex string                     `yaml:"flag_regex"`
	Registry  Registry                   `yaml:"registry"`
	Defaults  Defaults                   `yaml:"defaults"`
	Points    []ChallengePoints          `yaml:"points"`
	Deploy    map[string]map[string]bool `yaml:"deploy"`
	Profiles  map[string]ProfileConfig   `yaml:"profiles"`
}

// Load reads rcds.yaml from the repository root and applies any BEAVERCDS_
// environment overrides on top of it.
func Load(root string) (*RcdsConfig, error) {
	path := filepath.Join(root, ConfigFile)
	log.Debugf("trying to parse %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ConfigFile, err)
	}

	cfg, err := Parse(data, os.Environ())
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFile, err)
	}
	return cfg, nil
}

// Parse decodes rcds.yaml contents, overlaying any BEAVERCDS_ variables found
// in environ (formatted as KEY=value).
func Parse(data []byte, environ []string) (*RcdsConfig, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = map[string]any{}
	}

	for _, o := range envOverrides(environ) {
		log.Tracef("overriding config with env value %s", o.path)
		if err := setPath(tree, o.path, o.value); err != nil {
			return nil, fmt.Errorf("could not apply override %s: %w", o.env, err)
		}
	}

	// round trip through yaml so the typed decode sees the merged tree
	merged, err := yaml.Marshal(tree)
	if err != nil {
		return nil, err
	}

	var cfg RcdsConfig
	if err := yaml.Unmarshal(merged, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *RcdsConfig) applyDefaults() {
	if c.Registry.TagFormat == "" {
		c.Registry.TagFormat = DefaultTagFormat
	}
	if c.Deploy == nil {
		c.Deploy = map[string]map[string]bool{}
	}
	if c.Profiles == nil {
		c.Profiles = map[string]ProfileConfig{}
	}
}

// Profile looks up the named deployment profile.
func (c *RcdsConfig) Profile(name string) (*ProfileConfig, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not found in config", name)
	}
	return &p, nil
}
