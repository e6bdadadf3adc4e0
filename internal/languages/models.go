package languages

import "github.com/itstheanurag/fnrunner/internal/model"

type RuntimeConfig struct {
	Image      string
	EntryFile  string
	RunCommand []string
	// Manifests are extra files written next to the entry file, keyed by name.
	Manifests map[string][]byte
}

type Language struct {
	ID     model.Language
	Name   string
	Config RuntimeConfig
}
