// Package module implements the vm.ModuleLoader spec 4.8 describes:
// source-module path resolution and recursive compilation, plus a
// process-wide native-module registry populated at VM init.
package module

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/kristofer/smog/pkg/compiler"
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
	"github.com/kristofer/smog/pkg/vm"
)

// sourceExt is the on-disk extension for an importable source module
// (spec 4.11: ".so" -- distinct from the compiled-blob ".sgb" format).
const sourceExt = ".so"

// indexName is the file checked when a dotted path names a directory
// rather than a single file (spec 4.8: "file form and index-file form are
// both checked").
const indexName = "index" + sourceExt

// NativeFactory builds a native module the first time it's imported.
// Returning a fresh *object.Module per call lets each VM hold its own
// module state even when two VMs share a process (spec 3, "Module").
type NativeFactory func(v *vm.VM) (*object.Module, error)

// Loader resolves both source and native imports for one VM lifetime
// (spec 4.8, "Modules and import"). It is not safe for concurrent use --
// the runtime it serves is itself single-threaded (spec 5).
type Loader struct {
	Interner *value.Interner

	// VendorDir, UserDir, and LibDir are walked in that order for an
	// absolute (non-relative) import, matching spec 4.8's "local vendor
	// dir, then a user package dir, then the executable-relative libs
	// dir".
	VendorDir string
	UserDir   string
	LibDir    string

	natives map[string]NativeFactory

	// dirStack holds the directory of whichever module is currently
	// being loaded, so a relative import nested inside it resolves
	// against *its* directory rather than the top-level script's.
	dirStack []string
}

// New returns a Loader rooted at scriptDir (the directory containing the
// top-level script, used as the initial relative-import base).
func New(interner *value.Interner, scriptDir string) *Loader {
	return &Loader{
		Interner: interner,
		VendorDir: filepath.Join(scriptDir, "vendor"),
		UserDir:   scriptDir,
		LibDir:    defaultLibDir(),
		natives:   make(map[string]NativeFactory),
		dirStack:  []string{scriptDir},
	}
}

func defaultLibDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "libs"
	}
	return filepath.Join(filepath.Dir(exe), "libs")
}

// Register adds a native module factory under its import name (leading
// underscore included, e.g. "_math").
func (l *Loader) Register(name string, factory NativeFactory) {
	l.natives[name] = factory
}

func (l *Loader) currentDir() string {
	if len(l.dirStack) == 0 {
		return "."
	}
	return l.dirStack[len(l.dirStack)-1]
}

// LoadModule implements vm.ModuleLoader for source imports: resolve path
// to a file, compile it, and run its body to completion to populate the
// returned module's Values table (spec 4.8: "Source modules are compiled
// recursively ... its top-level definitions populate the module's values
// table").
func (l *Loader) LoadModule(v *vm.VM, path string) (*object.Module, error) {
	resolved, err := l.resolve(path)
	if err != nil {
		return nil, errors.Wrapf(err, "import %q", path)
	}
	source, err := os.ReadFile(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "reading module %q", resolved)
	}

	l.dirStack = append(l.dirStack, filepath.Dir(resolved))
	fn, err := compiler.Compile(string(source), resolved, l.Interner)
	l.dirStack = l.dirStack[:len(l.dirStack)-1]
	if err != nil {
		return nil, errors.Wrapf(err, "compiling module %q", resolved)
	}

	values, err := v.RunModule(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "running module %q", resolved)
	}

	name := l.Interner.Intern([]byte(moduleLocalName(path)))
	mod := object.NewModule(name, resolved)
	mod.Values = values
	mod.Imported = true
	return mod, nil
}

// LoadNative implements vm.ModuleLoader for native imports: look the name
// up in the registry populated via Register (spec 4.8: "looked up in a
// process-wide registry populated at VM init").
func (l *Loader) LoadNative(v *vm.VM, path string) (*object.Module, error) {
	factory, ok := l.natives[path]
	if !ok {
		return nil, errors.Errorf("no native module registered as %q", path)
	}
	mod, err := factory(v)
	if err != nil {
		return nil, errors.Wrapf(err, "loading native module %q", path)
	}
	mod.Native = true
	mod.Imported = true
	if mod.Preload != nil {
		if err := mod.Preload(v, mod); err != nil {
			return nil, errors.Wrapf(err, "preloading native module %q", path)
		}
	}
	return mod, nil
}

// moduleLocalName returns the last dotted/relative segment of an import
// path, the name a module is known by inside the importing scope.
func moduleLocalName(path string) string {
	path = strings.TrimLeft(path, ".")
	segs := strings.Split(path, ".")
	return segs[len(segs)-1]
}

// resolve turns a dotted or relative import path into a file on disk, per
// spec 4.8/4.8's "Import path layout": a leading run of dots walks up
// from the importing module's directory that many levels (after the
// first, which just means "this directory"); anything else is looked up
// under VendorDir, then UserDir, then LibDir, each checked both as a
// direct file and as an index file inside a directory.
func (l *Loader) resolve(path string) (string, error) {
	dots := 0
	for dots < len(path) && path[dots] == '.' {
		dots++
	}
	rest := path[dots:]
	segs := strings.Split(rest, ".")

	if dots > 0 {
		base := l.currentDir()
		for i := 1; i < dots; i++ {
			base = filepath.Dir(base)
		}
		if f, ok := tryPath(base, segs); ok {
			return f, nil
		}
		return "", errors.Errorf("module %q not found relative to %q", path, base)
	}

	for _, base := range []string{l.VendorDir, l.UserDir, l.LibDir} {
		if f, ok := tryPath(base, segs); ok {
			return f, nil
		}
	}
	return "", errors.Errorf("module %q not found in vendor, user, or lib search path", path)
}

// tryPath checks base/segs.../indexName then base/segs...segN<ext>,
// matching "file form and index-file form are both checked".
func tryPath(base string, segs []string) (string, bool) {
	dir := filepath.Join(append([]string{base}, segs...)...)
	indexFile := filepath.Join(dir, indexName)
	if fileExists(indexFile) {
		return indexFile, true
	}
	flat := dir + sourceExt
	if fileExists(flat) {
		return flat, true
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
