package executor

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/google/shlex"
)

// Adapter holds the compile/run recipe for one language. CompileArgs is nil
// for interpreter-only languages.
type Adapter struct {
	Slug        string
	SourceFile  string
	CompileArgs []string
	RunArgs     []string
}

// Catalog maps language slugs to adapters. The closed set of supported
// languages is whatever the catalog declares.
type Catalog struct {
	adapters map[string]Adapter
}

type catalogFile struct {
	Languages []struct {
		Slug       string `yaml:"slug"`
		SourceFile string `yaml:"source_file"`
		Compile    string `yaml:"compile"`
		Run        string `yaml:"run"`
	} `yaml:"languages"`
}

const defaultCatalogYAML = `languages:
  - slug: c
    source_file: main.c
    compile: "gcc -O2 -std=c17 -o prog main.c -lm"
    run: "./prog"
  - slug: cpp
    source_file: main.cpp
    compile: "g++ -O2 -std=c++20 -o prog main.cpp"
    run: "./prog"
  - slug: java
    source_file: Main.java
    compile: "javac Main.java"
    run: "java -XX:+UseSerialGC -Xss64m Main"
  - slug: python
    source_file: main.py
    run: "python3 main.py"
  - slug: javascript
    source_file: main.js
    run: "node main.js"
`

// LoadCatalog reads a language catalog from path. A missing file falls back
// to the built-in defaults so a bare checkout still runs.
func LoadCatalog(path string) (*Catalog, error) {
	data := []byte(defaultCatalogYAML)
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			data = b
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read language catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse language catalog: %w", err)
	}
	if len(cf.Languages) == 0 {
		return nil, fmt.Errorf("language catalog declares no languages")
	}

	adapters := make(map[string]Adapter, len(cf.Languages))
	for _, l := range cf.Languages {
		if l.Slug == "" || l.SourceFile == "" || l.Run == "" {
			return nil, fmt.Errorf("language %q: slug, source_file and run are required", l.Slug)
		}
		runArgs, err := shlex.Split(l.Run)
		if err != nil {
			return nil, fmt.Errorf("language %q: bad run command: %w", l.Slug, err)
		}
		var compileArgs []string
		if l.Compile != "" {
			compileArgs, err = shlex.Split(l.Compile)
			if err != nil {
				return nil, fmt.Errorf("language %q: bad compile command: %w", l.Slug, err)
			}
		}
		adapters[l.Slug] = Adapter{
			Slug:        l.Slug,
			SourceFile:  l.SourceFile,
			CompileArgs: compileArgs,
			RunArgs:     runArgs,
		}
	}
	return &Catalog{adapters: adapters}, nil
}

func (c *Catalog) Lookup(slug string) (Adapter, bool) {
	a, ok := c.adapters[slug]
	return a, ok
}

func (c *Catalog) Slugs() []string {
	out := make([]string, 0, len(c.adapters))
	for slug := range c.adapters {
		out = append(out, slug)
	}
	return out
}
