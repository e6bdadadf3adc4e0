package languages

import (
	"sort"
	"sync"

	"github.com/itstheanurag/fnrunner/internal/failure"
	"github.com/itstheanurag/fnrunner/internal/model"
)

// MountPath is where a workspace appears inside every sandbox.
const MountPath = "/app"

type Registry struct {
	mu        sync.RWMutex
	languages map[model.Language]Language
}

func NewRegistry() *Registry {
	r := &Registry{
		languages: make(map[model.Language]Language),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) Register(lang Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages[lang.ID] = lang
}

func (r *Registry) Get(id model.Language) (Language, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.languages[id]
	if !ok {
		return Language{}, failure.UnsupportedLanguage(string(id))
	}
	return lang, nil
}

func (r *Registry) List() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]Language, 0, len(r.languages))
	for _, l := range r.languages {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].ID < langs[j].ID })
	return langs
}

func (r *Registry) registerDefaults() {
	r.Register(Language{
		ID:   model.LanguageJavaScript,
		Name: "JavaScript",
		Config: RuntimeConfig{
			Image:      "node:20-alpine",
			EntryFile:  "index.js",
			RunCommand: []string{"node", MountPath + "/index.js"},
			Manifests: map[string][]byte{
				"package.json": []byte(`{"name":"function","version":"1.0.0","main":"index.js"}`),
			},
		},
	})

	r.Register(Language{
		ID:   model.LanguagePython,
		Name: "Python",
		Config: RuntimeConfig{
			Image:      "python:3.12-alpine",
			EntryFile:  "main.py",
			RunCommand: []string{"python", MountPath + "/main.py"},
		},
	})
}
