package testjson

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Resolver maps import paths to source directories and finds test
// declarations. Lookups are cached; misses resolve to zero values.
type Resolver struct {
	root       string
	modulePath string

	mu    sync.Mutex
	decls map[string]map[string]decl // dir → test name → declaration
}

type decl struct {
	file string
	line int
}

// NewResolver reads go.mod in root. An empty root uses the working directory.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving module root: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving module root: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, fmt.Errorf("reading go.mod: %w", err)
	}
	mod := modulePath(data)
	if mod == "" {
		return nil, fmt.Errorf("no module directive in %s", filepath.Join(root, "go.mod"))
	}
	return &Resolver{root: root, modulePath: mod, decls: make(map[string]map[string]decl)}, nil
}

func modulePath(gomod []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(gomod))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "module"); ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t') {
			return strings.Trim(strings.TrimSpace(rest), `"`)
		}
	}
	return ""
}

// Dir returns the source directory of an import path inside the module.
func (r *Resolver) Dir(pkg string) string {
	if r == nil {
		return ""
	}
	if pkg == r.modulePath {
		return r.root
	}
	rel, ok := strings.CutPrefix(pkg, r.modulePath+"/")
	if !ok {
		return ""
	}
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

// Decl finds the file and line declaring a top-level test function.
func (r *Resolver) Decl(pkg, test string) (string, int) {
	dir := r.Dir(pkg)
	if dir == "" {
		return "", 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.decls[dir]
	if !ok {
		byName = scanDecls(dir)
		r.decls[dir] = byName
	}
	d := byName[topLevel(test)]
	return d.file, d.line
}

var testDeclRe = regexp.MustCompile(`^func\s+((?:Test|Example|Fuzz|Benchmark)\w*)\s*\(`)

func scanDecls(dir string) map[string]decl {
	out := make(map[string]decl)
	files, _ := filepath.Glob(filepath.Join(dir, "*_test.go"))
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for n := 1; sc.Scan(); n++ {
			if m := testDeclRe.FindStringSubmatch(sc.Text()); m != nil {
				if _, dup := out[m[1]]; !dup {
					out[m[1]] = decl{file: file, line: n}
				}
			}
		}
		f.Close()
	}
	return out
}
