// Package packaging produces the distributable archive for a built skill.
// The archive is a zip named {skill}.skill.zip whose entries all live
// under a top-level {skill}/ folder, so extraction yields the same layout
// the build step produced.
package packaging

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/skillforge/skillforge/internal/skillmd"
	"github.com/skillforge/skillforge/internal/steps"
)

// fixedModTime makes archives byte-for-byte reproducible across builds.
var fixedModTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Result describes a packaged skill.
type Result struct {
	ArchivePath string
	Skill       string
	FileCount   int
}

// Pack validates the skill definition in skillDir and writes the archive
// into outputDir. An existing archive at the target path is replaced.
func Pack(skillDir, outputDir string) (*Result, error) {
	def, err := skillmd.Load(skillDir)
	if err != nil {
		return nil, fmt.Errorf("validating skill: %w", err)
	}

	files, err := collectFiles(skillDir)
	if err != nil {
		return nil, fmt.Errorf("collecting skill files: %w", err)
	}

	archivePath := filepath.Join(outputDir, steps.ArchiveName(def.Name))
	if err := writeArchive(archivePath, def.Name, skillDir, files); err != nil {
		os.Remove(archivePath)
		return nil, err
	}

	return &Result{
		ArchivePath: archivePath,
		Skill:       def.Name,
		FileCount:   len(files),
	}, nil
}

// collectFiles walks skillDir and returns regular files as sorted
// slash-separated relative paths. Hidden files and a stray previous
// archive are left out.
func collectFiles(skillDir string) ([]string, error) {
	var files []string
	err := filepath.Walk(skillDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") && name != "." {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(name, ".skill.zip") {
			return nil
		}
		rel, err := filepath.Rel(skillDir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func writeArchive(archivePath, skill, skillDir string, files []string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, rel := range files {
		header := &zip.FileHeader{
			Name:     skill + "/" + rel,
			Method:   zip.Deflate,
			Modified: fixedModTime,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("adding %s: %w", rel, err)
		}
		src, err := os.Open(filepath.Join(skillDir, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("writing %s: %w", rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	return nil
}

// List returns the entry names in an archive, sorted.
func List(archivePath string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Extract unpacks an archive into targetDir, refusing entries that would
// escape it.
func Extract(archivePath, targetDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	cleanTarget := filepath.Clean(targetDir)
	for _, f := range zr.File {
		dest := filepath.Join(targetDir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(filepath.Clean(dest), cleanTarget+string(os.PathSeparator)) {
			return fmt.Errorf("invalid path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := extractFile(f, dest); err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
