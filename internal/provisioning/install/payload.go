package install

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/platform/s3"
	"github.com/imamik/stackfleet/internal/provisioning"
)

// Payload is a resolved, read-only installer source on local disk.
type Payload struct {
	// Path is a directory copied recursively, or a single file.
	Path string

	// Entrypoint is the file run inside the payload copy.
	Entrypoint string

	dir bool
}

// IsDir reports whether the payload is a directory.
func (p *Payload) IsDir() bool {
	return p.dir
}

// ResolvePayload locates source on disk. An s3:// source is first fetched
// into cacheDir through downloader; .tar.gz and .tgz objects are unpacked.
// A single file payload is its own entrypoint.
func ResolvePayload(ctx context.Context, source, entrypoint, cacheDir string, downloader provisioning.Downloader) (*Payload, error) {
	if s3.IsURI(source) {
		local, err := fetch(ctx, source, cacheDir, downloader)
		if err != nil {
			return nil, err
		}
		source = local
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("installer payload %s: %w", source, err)
	}
	if !info.IsDir() {
		return &Payload{Path: source, Entrypoint: filepath.Base(source)}, nil
	}

	entry := filepath.Join(source, filepath.FromSlash(entrypoint))
	if _, err := os.Stat(entry); err != nil {
		return nil, fmt.Errorf("installer entrypoint %s not found in payload: %w", entrypoint, err)
	}
	return &Payload{Path: source, Entrypoint: entrypoint, dir: true}, nil
}

func fetch(ctx context.Context, uri, cacheDir string, downloader provisioning.Downloader) (string, error) {
	if downloader == nil {
		return "", fmt.Errorf("payload %s needs object storage, none configured", uri)
	}
	bucket, key, err := s3.ParseURI(uri)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create payload cache: %w", err)
	}

	name := path.Base(key)
	target := filepath.Join(cacheDir, name)
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}
	n, err := downloader.Download(ctx, bucket, key, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to download payload %s: %w", uri, err)
	}
	logr.FromContextOrDiscard(ctx).Info("Payload downloaded", "uri", uri, "bytes", n)

	if !strings.HasSuffix(name, ".tar.gz") && !strings.HasSuffix(name, ".tgz") {
		return target, nil
	}

	dir := filepath.Join(cacheDir, strings.TrimSuffix(strings.TrimSuffix(name, ".tar.gz"), ".tgz"))
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := extract(target, dir); err != nil {
		return "", fmt.Errorf("failed to unpack payload %s: %w", uri, err)
	}
	return dir, nil
}

// extract unpacks a gzipped tarball into dir. Entries escaping dir and
// anything other than regular files and directories are rejected.
func extract(archive, dir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		name := path.Clean(hdr.Name)
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return fmt.Errorf("archive entry %q escapes the payload directory", hdr.Name)
		}
		target := filepath.Join(dir, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			return fmt.Errorf("archive entry %q has unsupported type %c", hdr.Name, hdr.Typeflag)
		}
	}
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
