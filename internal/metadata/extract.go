package metadata

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/frederic-klein/pydl/internal/distfile"
)

// ExtractMetadata reads the core metadata document out of a distribution
// archive on disk. Wheels carry it as <name>-<version>.dist-info/METADATA
// inside the zip; sdists as PKG-INFO one directory deep.
func ExtractMetadata(path, filename string) ([]byte, error) {
	if distfile.IsWheel(filename) {
		w, err := distfile.ParseWheel(filename)
		if err != nil {
			return nil, err
		}
		return extractWheel(path, w)
	}
	if distfile.IsSdist(filename) {
		return extractSdist(path, filename)
	}
	return nil, fmt.Errorf("%s is not a distribution archive", filename)
}

func extractWheel(path string, w distfile.Wheel) ([]byte, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening wheel: %w", err)
	}
	defer reader.Close()

	want := w.Name + "-" + w.Version.String() + ".dist-info/METADATA"
	var fallback *zip.File
	for _, f := range reader.File {
		if f.Name == want {
			return readZipFile(f)
		}
		// Some wheels spell the dist-info prefix differently than the
		// filename fields. Remember the first plausible entry.
		parts := strings.Split(f.Name, "/")
		if fallback == nil && len(parts) == 2 && strings.HasSuffix(parts[0], ".dist-info") && parts[1] == "METADATA" {
			fallback = f
		}
	}
	if fallback != nil {
		return readZipFile(fallback)
	}
	return nil, fmt.Errorf("no METADATA found in %s", filepath.Base(path))
}

func extractSdist(path, name string) ([]byte, error) {
	if strings.HasSuffix(name, ".zip") {
		return extractSdistZip(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sdist: %w", err)
	}
	defer file.Close()

	var tarReader *tar.Reader
	if strings.HasSuffix(name, ".tar.bz2") {
		tarReader = tar.NewReader(bzip2.NewReader(file))
	} else {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("decompressing sdist: %w", err)
		}
		defer gzReader.Close()
		tarReader = tar.NewReader(gzReader)
	}

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading sdist: %w", err)
		}

		// Only the top-level PKG-INFO counts, not copies nested under
		// egg-info directories.
		parts := strings.Split(header.Name, "/")
		if len(parts) == 2 && parts[1] == "PKG-INFO" {
			data, err := io.ReadAll(tarReader)
			if err != nil {
				return nil, fmt.Errorf("reading PKG-INFO: %w", err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("no PKG-INFO found in %s", name)
}

func extractSdistZip(path string) ([]byte, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening sdist: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		parts := strings.Split(f.Name, "/")
		if len(parts) == 2 && parts[1] == "PKG-INFO" {
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("no PKG-INFO found in %s", filepath.Base(path))
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return data, nil
}
