package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/itstheanurag/fnrunner/internal/failure"
)

type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
)

// Languages is the closed set of tags a definition may carry.
var Languages = []Language{LanguageJavaScript, LanguagePython}

func (l Language) Valid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}

const DefaultTimeoutMS int64 = 30000

var routePattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// Definition is a registered function. The engine only ever sees a read-only
// snapshot of it for the duration of one invocation.
type Definition struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Route     string    `json:"route"`
	Code      string    `json:"code"`
	Language  Language  `json:"language"`
	TimeoutMS int64     `json:"timeout"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewDefinition builds a validated definition. An empty route is derived from
// the name, a zero timeout takes the default.
func NewDefinition(name, route, code string, lang Language, timeoutMS int64) (*Definition, error) {
	now := time.Now().UTC()
	def := &Definition{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Route:     strings.TrimSpace(route),
		Code:      code,
		Language:  lang,
		TimeoutMS: timeoutMS,
		CreatedAt: now,
		UpdatedAt: now,
	}
	def.applyDefaults()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *Definition) applyDefaults() {
	if d.Route == "" && d.Name != "" {
		d.Route = slug.Make(d.Name)
	}
	if d.TimeoutMS == 0 {
		d.TimeoutMS = DefaultTimeoutMS
	}
}

// Validate enforces the invariants a stored definition must hold. Route
// uniqueness is the store's job.
func (d *Definition) Validate() error {
	switch {
	case d.Name == "":
		return failure.Invalid("name is required")
	case d.Route == "":
		return failure.Invalid("route is required")
	case !routePattern.MatchString(d.Route):
		return failure.Invalid("route %q must be lower-case letters, digits, '-' or '_'", d.Route)
	case d.Code == "":
		return failure.Invalid("code is required")
	case !d.Language.Valid():
		return failure.Invalid("language %q is not one of %v", d.Language, Languages)
	case d.TimeoutMS <= 0:
		return failure.Invalid("timeout must be positive, got %d", d.TimeoutMS)
	}
	return nil
}

func (d *Definition) Timeout() time.Duration {
	return time.Duration(d.TimeoutMS) * time.Millisecond
}

// DefinitionPatch carries the fields of a partial update. Nil means unchanged.
type DefinitionPatch struct {
	Name      *string   `json:"name"`
	Route     *string   `json:"route"`
	Code      *string   `json:"code"`
	Language  *Language `json:"language"`
	TimeoutMS *int64    `json:"timeout"`
}

// Apply returns an updated copy of d; the original is left untouched.
func (p DefinitionPatch) Apply(d *Definition) (*Definition, error) {
	next := *d
	if p.Name != nil {
		next.Name = strings.TrimSpace(*p.Name)
	}
	if p.Route != nil {
		next.Route = strings.TrimSpace(*p.Route)
	}
	if p.Code != nil {
		next.Code = *p.Code
	}
	if p.Language != nil {
		next.Language = *p.Language
	}
	if p.TimeoutMS != nil {
		next.TimeoutMS = *p.TimeoutMS
	}
	next.UpdatedAt = time.Now().UTC()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}
