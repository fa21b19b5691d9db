/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package deploy

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/osusec/beavercds-ng/internal/config"
)

// ChallengeInfo renders the markdown block admins use to enter a deployed
// challenge into the CTF frontend. The host, port, nc, and url description
// variables describe the first exposed port; .exposed lists all of them.
func ChallengeInfo(chal *config.ChallengeConfig, kubeRes *KubeDeployResult, s3Res *S3DeployResult) (string, error) {
	var hostname string
	var port int
	var exposed []Exposure
	if kubeRes != nil && len(kubeRes.Exposed) > 0 {
		exposed = kubeRes.Exposed
		hostname = exposed[0].Hostname
		port = exposed[0].Port
	}

	desc, err := config.RenderStrict(chal.Directory+" description", chal.Description, map[string]any{
		"challenge": chal,
		"exposed":   exposed,
		"host":      hostname,
		"hostname":  hostname,
		"port":      port,
		"nc":        fmt.Sprintf("`nc %s %d`", hostname, port),
		"url":       fmt.Sprintf("[https://%[1]s](https://%[1]s)", hostname),
		"link":      "https://" + hostname,
	})
	if err != nil {
		return "", fmt.Errorf("could not render description for %s: %w", chal.Directory, err)
	}

	var links []string
	if s3Res != nil {
		for _, u := range s3Res.URLs {
			links = append(links, fmt.Sprintf("[%s](%s)", path.Base(u), u))
		}
	}

	flag, err := flagText(chal)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n##  `%s`\n\n", chal.Directory)
	b.WriteString("|        |   |\n--------:|---|\n")
	fmt.Fprintf(&b, "name     | `%s`\n", chal.Name)
	fmt.Fprintf(&b, "category | `%s`\n", chal.Category)
	fmt.Fprintf(&b, "author   | `%s`\n", chal.Author)
	fmt.Fprintf(&b, "\n### description\n\n```\n%s\n\n%s\n```\n", desc, strings.Join(links, "\n\n"))
	fmt.Fprintf(&b, "\n### flag\n\n`%s`\n\n---\n", flag)
	return b.String(), nil
}

func flagText(chal *config.ChallengeConfig) (string, error) {
	switch chal.Flag.Kind {
	case config.FlagFile:
		data, err := os.ReadFile(chal.Path(chal.Flag.Value))
		if err != nil {
			return "", fmt.Errorf("could not open flag file for challenge %s: %w", chal.Directory, err)
		}
		return strings.TrimSpace(string(data)), nil
	case config.FlagRegex, config.FlagVerifier:
		return fmt.Sprintf("%s: %s", chal.Flag.Kind, chal.Flag.Value), nil
	default:
		return strings.TrimSpace(chal.Flag.Value), nil
	}
}
