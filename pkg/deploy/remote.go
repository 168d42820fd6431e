package deploy

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/cloudbuild/apiv1/v2/cloudbuildpb"
	"cloud.google.com/go/storage"

	"github.com/stackpilot/stackpilot/pkg/logging"
)

// buildRemote packages the component's source, uploads it to the project's
// build bucket, and runs the Docker build on Cloud Build. The result is the
// same digest-pinned reference a local build produces, with no Docker daemon
// required on the machine running the deploy.
func (d *Deployer) buildRemote(ctx context.Context, spec BuildSpec, tag string) (string, error) {
	uri := fmt.Sprintf("%s/%s:%s", d.registry.URL(), spec.ImageName, tag)

	object, err := d.uploadSource(ctx, spec)
	if err != nil {
		return "", err
	}

	build := &cloudbuildpb.Build{
		Source: &cloudbuildpb.Source{
			Source: &cloudbuildpb.Source_StorageSource{
				StorageSource: &cloudbuildpb.StorageSource{
					Bucket: d.buildBucket(),
					Object: object,
				},
			},
		},
		Steps: []*cloudbuildpb.BuildStep{
			{
				Name: "gcr.io/cloud-builders/docker",
				Args: []string{
					"build",
					"--platform", "linux/amd64",
					"-t", uri,
					"-f", spec.Dockerfile,
					".",
				},
			},
		},
		Images: []string{uri},
	}

	logging.Info("submitting remote build",
		"component", string(spec.Component), "image", uri)

	op, err := d.buildClient.CreateBuild(ctx, &cloudbuildpb.CreateBuildRequest{
		ProjectId: d.cfg.ProjectID,
		Build:     build,
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit build: %w", err)
	}

	result, err := op.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("remote build failed: %w", err)
	}
	if result.Status != cloudbuildpb.Build_SUCCESS {
		return "", fmt.Errorf("remote build finished with status %s: %s",
			result.Status, result.StatusDetail)
	}

	digest, err := d.registry.Digest(ctx, uri)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s@%s", d.registry.URL(), spec.ImageName, digest), nil
}

// buildBucket follows the gcloud convention for per-project build staging.
func (d *Deployer) buildBucket() string {
	return d.cfg.ProjectID + "_cloudbuild"
}

// uploadSource archives the component directory and stages it in the build
// bucket, creating the bucket on first use.
func (d *Deployer) uploadSource(ctx context.Context, spec BuildSpec) (string, error) {
	bucket := d.storageClient.Bucket(d.buildBucket())

	if _, err := bucket.Attrs(ctx); err != nil {
		if !errors.Is(err, storage.ErrBucketNotExist) {
			return "", fmt.Errorf("failed to stat build bucket: %w", err)
		}
		if err := bucket.Create(ctx, d.cfg.ProjectID, &storage.BucketAttrs{
			Location: d.cfg.Region,
		}); err != nil {
			return "", fmt.Errorf("failed to create build bucket: %w", err)
		}
	}

	archive, err := os.CreateTemp("", "stackpilot-source-*.tgz")
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer os.Remove(archive.Name())
	archive.Close()

	if err := createTarGz(spec.Dir, archive.Name()); err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", spec.Dir, err)
	}

	object := fmt.Sprintf("source/%s-%d.tgz", spec.Component, time.Now().UnixNano())

	src, err := os.Open(archive.Name())
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer src.Close()

	w := bucket.Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload source: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish upload: %w", err)
	}

	return object, nil
}

// createTarGz archives a directory. Hidden files and directories are not
// part of a build context and are skipped.
func createTarGz(sourceDir, targetFile string) error {
	file, err := os.Create(targetFile)
	if err != nil {
		return fmt.Errorf("failed to create tar file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	return filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if strings.HasPrefix(filepath.Base(path), ".") && path != sourceDir {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		header.Name = relPath

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})
}
