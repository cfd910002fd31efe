package hf

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"quill/internal/services"
)

// Collect walks root and returns every regular file not excluded by ignore,
// sorted by repository path. A pattern excludes an entry when it matches the
// entry's slash-separated relative path or any single element of it.
func Collect(root string, ignore []string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if Ignored(rel, ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, File{Path: rel, LocalPath: p, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrFileSystem, serviceName, "collect", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Ignored reports whether rel matches one of patterns.
func Ignored(rel string, patterns []string) bool {
	elements := strings.Split(rel, "/")
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		for _, element := range elements {
			if ok, _ := path.Match(pattern, element); ok {
				return true
			}
		}
	}
	return false
}
