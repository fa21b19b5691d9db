/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package builder

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"github.com/moby/moby/client"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/osusec/beavercds-ng/internal/config"
)

// ErrNoFiles is returned when a file download from a container is empty.
var ErrNoFiles = errors.New("no files in it")

// ExtractAsset produces the files for one provide entry in the challenge
// directory and returns their paths.
func (b *Builder) ExtractAsset(ctx context.Context, chal *config.ChallengeConfig, provide config.Provide, profile string) ([]string, error) {
	log.WithFields(log.Fields{
		"challenge": chal.Directory,
		"files":     provide.Files,
		"mode":      provide.Packaging,
	}).Debug("extracting assets")

	if !provide.FromContainer() {
		return extractFromRepo(chal, provide)
	}
	return b.extractFromContainer(ctx, chal, provide, profile)
}

func extractFromRepo(chal *config.ChallengeConfig, provide config.Provide) ([]string, error) {
	switch provide.Packaging {
	case config.Rename:
		from, to := chal.Path(provide.Files[0]), chal.Path(provide.As)
		if err := copyLocal(from, to); err != nil {
			return nil, fmt.Errorf("could not copy repo file %s to %s: %w", provide.Files[0], provide.As, err)
		}
		return []string{to}, nil

	case config.Archive:
		files := make([]string, len(provide.Files))
		for i, f := range provide.Files {
			files[i] = chal.Path(f)
		}
		archive := chal.Path(provide.As)
		if err := zipFiles(archive, files); err != nil {
			return nil, fmt.Errorf("could not create archive %s: %w", provide.As, err)
		}
		return []string{archive}, nil

	default:
		files := make([]string, len(provide.Files))
		for i, f := range provide.Files {
			files[i] = chal.Path(f)
		}
		return files, nil
	}
}

func (b *Builder) extractFromContainer(ctx context.Context, chal *config.ChallengeConfig, provide config.Provide, profile string) (files []string, err error) {
	pod, ok := chal.Pod(provide.Container)
	if !ok {
		return nil, fmt.Errorf("challenge has no container %q", provide.Container)
	}
	image, err := chal.ImageRef(b.Config, profile, pod)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("asset-container-%s-%s-%s", chal.Slug(), pod.Name, uuid.NewString()[:6])
	created, err := b.Engine.ContainerCreate(ctx, client.ContainerCreateOptions{Name: name, Image: image})
	if err != nil {
		return nil, fmt.Errorf("create container %q from %s: %w", name, image, err)
	}
	defer func() {
		if rmErr := b.removeContainer(context.WithoutCancel(ctx), created.ID); rmErr != nil && err == nil {
			err = rmErr
		}
	}()

	switch provide.Packaging {
	case config.Rename:
		to := chal.Path(provide.As)
		if err := b.copyFile(ctx, created.ID, provide.Files[0], to); err != nil {
			return nil, fmt.Errorf("could not copy file %s from container %s: %w", provide.Files[0], pod.Name, err)
		}
		return []string{to}, nil

	case config.Archive:
		staging, err := os.MkdirTemp(chal.Dir(), ".beavercds-archive-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(staging)

		copied, err := b.copyFiles(ctx, created.ID, provide.Files, staging)
		if err != nil {
			return nil, fmt.Errorf("could not create archive %s with files %v from container %s: %w", provide.As, provide.Files, pod.Name, err)
		}
		archive := chal.Path(provide.As)
		if err := zipFiles(archive, copied); err != nil {
			return nil, fmt.Errorf("could not create archive %s: %w", provide.As, err)
		}
		return []string{archive}, nil

	default:
		copied, err := b.copyFiles(ctx, created.ID, provide.Files, chal.Dir())
		if err != nil {
			return nil, fmt.Errorf("could not copy files %v from container %s: %w", provide.Files, pod.Name, err)
		}
		return copied, nil
	}
}

func (b *Builder) removeContainer(ctx context.Context, id string) error {
	_, err := b.Engine.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %q: %w", id, err)
	}
	return nil
}

// copyFiles copies each container file into dir under its basename.
func (b *Builder) copyFiles(ctx context.Context, id string, files []string, dir string) ([]string, error) {
	out := make([]string, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, from := range files {
		out[i] = filepath.Join(dir, path.Base(from))
		g.Go(func() error {
			return b.copyFile(ctx, id, from, out[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// copyFile downloads a single file from a container to the local path to.
func (b *Builder) copyFile(ctx context.Context, id, from, to string) error {
	log.Tracef("copying %s from container %s to %s", from, id, to)

	res, err := b.Engine.CopyFromContainer(ctx, id, client.CopyFromContainerOptions{SourcePath: from})
	if err != nil {
		return fmt.Errorf("download %s: %w", from, err)
	}
	defer res.Content.Close()

	buf, err := os.CreateTemp("", ".beavercds-download-*.tar")
	if err != nil {
		return err
	}
	defer os.Remove(buf.Name())
	defer buf.Close()

	if _, err := io.Copy(buf, res.Content); err != nil {
		return fmt.Errorf("download %s: %w", from, err)
	}
	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		return err
	}

	tr := tar.NewReader(buf)
	hdr, err := tr.Next()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("archive of %s from container has %w", from, ErrNoFiles)
	}
	if err != nil {
		return fmt.Errorf("read archive of %s: %w", from, err)
	}

	out, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, hdr.FileInfo().Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, tr); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", to, err)
	}
	return out.Close()
}

func copyLocal(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	dst, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// zipFiles writes files into a zip at archive, in the given order. Entries are
// stored under their basename only.
func zipFiles(archive string, files []string) error {
	log.Debugf("creating zip at %s", archive)

	f, err := os.Create(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, p := range files {
		if err := addToZip(zw, p); err != nil {
			return fmt.Errorf("add %s to zip: %w", p, err)
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func addToZip(zw *zip.Writer, p string) error {
	src, err := os.Open(p)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	hdr := &zip.FileHeader{Name: filepath.Base(p), Method: zip.Deflate}
	hdr.SetMode(info.Mode().Perm())
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
