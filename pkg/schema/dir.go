package schema

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Load reads schemas from a source file, a class file, or a directory of
// both, merging everything found into the registry. hint forces the
// encoding; EncodingAuto keeps detection active.
func (r *Registry) Load(path string, hint Encoding) error {
	if r.frozen {
		return ErrFrozen
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if info.IsDir() {
		err = r.loadDir(path)
	} else {
		err = r.loadFile(path)
	}
	if err != nil {
		return err
	}
	r.SetEncoding(hint)
	return nil
}

func (r *Registry) loadFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".java":
		sf, err := ParseSourceFile(path)
		if err != nil {
			return err
		}
		for _, c := range sf.Classes {
			if err := r.add(c, originSource); err != nil {
				return fmt.Errorf("schema: %s: %w", path, err)
			}
		}
		r.observeEncoding(DetectEncoding(sf.Imports, sf.Classes))
	case ".class":
		// Inner class files are picked up through their outer class.
		if strings.Contains(filepath.Base(path), "$") {
			return nil
		}
		cf, err := ParseClassFile(path)
		if err != nil {
			return err
		}
		if err := r.add(cf.Class, originBytecode); err != nil {
			return fmt.Errorf("schema: %s: %w", path, err)
		}
		r.observeEncoding(DetectEncoding(cf.Referenced, []*ClassDef{cf.Class}))
	default:
		return fmt.Errorf("schema: unsupported file type %s (want .java or .class)", path)
	}
	return nil
}

// loadDir recursively loads every source and class file under dir. Sources
// are loaded before bytecode so that a class defined in both resolves to
// source regardless of walk order; within each group paths are sorted so
// discovery order never affects the result.
func (r *Registry) loadDir(dir string) error {
	var sources, bytecode []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".java":
			sources = append(sources, path)
		case ".class":
			bytecode = append(bytecode, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("schema: scan %s: %w", dir, err)
	}
	if len(sources)+len(bytecode) == 0 {
		return fmt.Errorf("schema: no source or class files under %s", dir)
	}

	for _, path := range sortedCopy(sources) {
		if err := r.loadFile(path); err != nil {
			return err
		}
	}
	for _, path := range sortedCopy(bytecode) {
		if err := r.loadFile(path); err != nil {
			return err
		}
	}
	return nil
}

// observeEncoding keeps the strongest detection seen so far: anything beats
// auto, and a schema-driven encoding beats the self-describing default. A
// forced encoding is never overridden.
func (r *Registry) observeEncoding(e Encoding) {
	if r.forced {
		return
	}
	if r.encoding == EncodingAuto || r.encoding == EncodingSelfDescribing {
		r.encoding = e
	}
}
