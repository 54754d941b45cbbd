package docker

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
)

// buildTar packs files (relative path -> content) into an in-memory
// tar archive suitable for CopyToContainer. Every entry is written
// mode 0o755: submitted source runs through an interpreter regardless
// of the executable bit, and a compiled artifact copied back in on a
// later run needs it set.
func buildTar(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o755,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", name, err)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, fmt.Errorf("failed to write tar content for %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar archive: %w", err)
	}
	return buf.Bytes(), nil
}

// extractTarSingle reads a tar stream and returns the contents of the
// entry whose base name matches name, as returned by CopyFromContainer
// for a single-file path.
func extractTarSingle(r io.Reader, name string) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		if filepath.Base(hdr.Name) != name {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry %s: %w", hdr.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("artifact %q not found in archive", name)
}
