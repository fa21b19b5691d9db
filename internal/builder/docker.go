/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package builder

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/moby/api/types/jsonstream"
	"github.com/moby/moby/client"
	log "github.com/sirupsen/logrus"

	"github.com/osusec/beavercds-ng/internal/config"
	"github.com/osusec/beavercds-ng/internal/logging"
)

// BuildError is an error reported by the daemon during a build.
type BuildError struct {
	Tag     string
	Message string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building %s: %s", e.Tag, e.Message)
}

// BuildImage builds the image described by spec, relative to contextDir, and
// tags it as tag. The image is left in the local daemon.
func (b *Builder) BuildImage(ctx context.Context, contextDir string, spec *config.BuildSpec, tag string) (string, error) {
	buildDir := filepath.Join(contextDir, filepath.FromSlash(spec.Context))
	logger := log.WithFields(log.Fields{"context": buildDir, "tag": tag})
	logger.Debug("building image")

	pr, pw := io.Pipe()
	defer pr.Close()
	go func() {
		pw.CloseWithError(tarDirectory(buildDir, pw))
	}()

	var args map[string]*string
	if len(spec.Args) > 0 {
		args = make(map[string]*string, len(spec.Args))
		for _, a := range spec.Args {
			args[a.Name] = &a.Value
		}
	}

	res, err := b.Engine.ImageBuild(ctx, pr, client.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  spec.Dockerfile,
		BuildArgs:   args,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", fmt.Errorf("could not start build of %s: %w", tag, err)
	}
	defer res.Body.Close()

	dec := json.NewDecoder(res.Body)
	for {
		var msg jsonstream.Message
		err := dec.Decode(&msg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("could not read build output for %s: %w", tag, err)
		}

		if msg.Error != nil {
			return "", &BuildError{Tag: tag, Message: msg.Error.Message}
		}
		if line := strings.TrimRight(msg.Stream, "\r\n"); line != "" {
			logger.Info(logging.Dim(line))
		}
	}

	return tag, nil
}

// PushImage pushes a locally built tag to its registry.
func (b *Builder) PushImage(ctx context.Context, tag string) (string, error) {
	logger := log.WithField("tag", tag)
	logger.Info("pushing image")

	auth, err := b.Creds.Encoded()
	if err != nil {
		return "", fmt.Errorf("could not encode registry credentials: %w", err)
	}

	resp, err := b.Engine.ImagePush(ctx, tag, client.ImagePushOptions{RegistryAuth: auth})
	if err != nil {
		return "", fmt.Errorf("could not push %s: %w", tag, err)
	}
	defer resp.Close()

	for msg, err := range resp.JSONMessages(ctx) {
		if err != nil {
			return "", fmt.Errorf("could not read push output for %s: %w", tag, err)
		}
		if msg.Error != nil {
			return "", fmt.Errorf("registry rejected push of %s: %s", tag, msg.Error.Message)
		}
		if msg.Status != "" {
			logger.Trace(strings.TrimSpace(msg.ID + " " + msg.Status))
		}
	}

	return tag, nil
}

// tarDirectory writes dir as an uncompressed tar stream, paths relative to dir.
func tarDirectory(dir string, w io.Writer) error {
	tw := tar.NewWriter(w)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("could not package build context %s: %w", dir, err)
	}

	return tw.Close()
}
