// Package apidocs builds the OpenAPI document of the lens server and serves
// it as JSON and YAML.
//
// The active authentication strategy describes itself to a Builder through
// the auth.DocBuilder methods. Security requirements apply to every
// documented operation that is not marked public.
package apidocs

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/bondowe/webfram/openapi"

	"github.com/rhuss/lens/pkg/api"
	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/settings"
)

// Builder accumulates the OpenAPI document. It implements auth.DocBuilder
// and is safe for concurrent use.
type Builder struct {
	mu         sync.Mutex
	docs       settings.Docs
	schemes    map[string]openapi.SecurityScheme
	security   []requirement
	ui         *auth.UIAuth
	operations []operation
}

var _ auth.DocBuilder = (*Builder)(nil)

type requirement struct {
	name   string
	scopes []string
}

type operation struct {
	path   string
	method string
	op     openapi.Operation
	public bool
}

// NewBuilder creates a builder for an application described by docs.
func NewBuilder(docs settings.Docs) *Builder {
	if docs.Title == "" {
		docs.Title = "Protected API"
	}
	return &Builder{
		docs:    docs,
		schemes: make(map[string]openapi.SecurityScheme),
	}
}

// AddSecurityScheme implements auth.DocBuilder. A second scheme with the
// same name replaces the first.
func (b *Builder) AddSecurityScheme(name string, scheme openapi.SecurityScheme) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schemes[name] = scheme
}

// AddSecurityRequirement implements auth.DocBuilder. Requirements are
// alternatives: satisfying any one of them is enough.
func (b *Builder) AddSecurityRequirement(name string, scopes []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if scopes == nil {
		scopes = []string{}
	}
	idx := slices.IndexFunc(b.security, func(r requirement) bool { return r.name == name })
	if idx >= 0 {
		b.security[idx].scopes = slices.Clone(scopes)
		return
	}
	b.security = append(b.security, requirement{name: name, scopes: slices.Clone(scopes)})
}

// SetUIAuth implements auth.DocBuilder.
func (b *Builder) SetUIAuth(ui auth.UIAuth) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ui.Scopes = slices.Clone(ui.Scopes)
	b.ui = &ui
}

// UIAuth returns the interactive sign-in configuration, if any.
func (b *Builder) UIAuth() (auth.UIAuth, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ui == nil {
		return auth.UIAuth{}, false
	}
	return *b.ui, true
}

// AddOperation documents an endpoint. Public operations are marked as not
// requiring any credential.
func (b *Builder) AddOperation(method, path string, op openapi.Operation, public bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.operations = append(b.operations, operation{
		path:   path,
		method: strings.ToLower(method),
		op:     op,
		public: public,
	})
}

// Document assembles a fresh OpenAPI document from the current state.
func (b *Builder) Document() *openapi.Config {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc := &openapi.Config{
		Info: &openapi.Info{
			Title:       b.docs.Title,
			Version:     b.docs.Version,
			Description: b.docs.Description,
		},
		Paths: openapi.Paths{},
	}

	if len(b.schemes) > 0 {
		doc.Components = &openapi.Components{
			SecuritySchemes: make(map[string]openapi.SecuritySchemeOrRef, len(b.schemes)),
		}
		for name, scheme := range b.schemes {
			doc.Components.SecuritySchemes[name] = openapi.SecuritySchemeOrRef{SecurityScheme: &scheme}
		}
	}

	for _, o := range b.operations {
		op := o.op
		if op.Responses == nil {
			op.Responses = map[string]openapi.ResponseOrRef{}
		}
		if len(b.security) > 0 {
			if o.public {
				op.Security = []map[string][]string{{}}
			} else {
				op.Security = b.securityLocked()
				addResponse(op.Responses, "401", "Missing or invalid credentials")
				addResponse(op.Responses, "403", "Authenticated caller lacks a required scope or role")
			}
		}
		doc.Paths.AddOperation(o.path, o.method, op)
	}

	return doc
}

func (b *Builder) securityLocked() []map[string][]string {
	out := make([]map[string][]string, 0, len(b.security))
	for _, r := range b.security {
		out = append(out, map[string][]string{r.name: slices.Clone(r.scopes)})
	}
	return out
}

func addResponse(responses map[string]openapi.ResponseOrRef, code, description string) {
	if _, ok := responses[code]; ok {
		return
	}
	responses[code] = openapi.ResponseOrRef{Response: &openapi.Response{Description: description}}
}

// JSON renders the document as JSON.
func (b *Builder) JSON() ([]byte, error) {
	return b.Document().MarshalJSON()
}

// YAML renders the document as YAML.
func (b *Builder) YAML() ([]byte, error) {
	return b.Document().MarshalYaml()
}

// JSONHandler serves the document as application/json.
func (b *Builder) JSONHandler() http.Handler {
	return renderHandler("application/json", b.JSON)
}

// YAMLHandler serves the document as application/yaml.
func (b *Builder) YAMLHandler() http.Handler {
	return renderHandler("application/yaml", b.YAML)
}

// uiConfig matches the initOAuth options of the interactive docs UI.
type uiConfig struct {
	ClientID                          string   `json:"clientId"`
	Scopes                            []string `json:"scopes"`
	UsePkceWithAuthorizationCodeGrant bool     `json:"usePkceWithAuthorizationCodeGrant"`
}

// UIConfigHandler serves the interactive sign-in configuration. It responds
// 404 when the strategy does not surface one.
func (b *Builder) UIConfigHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ui, ok := b.UIAuth()
		if !ok {
			api.WriteError(w, api.NewNotFoundError("interactive sign-in is not configured"), http.StatusNotFound)
			return
		}
		scopes := ui.Scopes
		if scopes == nil {
			scopes = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(uiConfig{
			ClientID:                          ui.ClientID,
			Scopes:                            scopes,
			UsePkceWithAuthorizationCodeGrant: ui.UsePKCE,
		})
	})
}

func renderHandler(contentType string, render func() ([]byte, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render()
		if err != nil {
			api.WriteError(w, api.NewServerError("rendering API document failed"), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	})
}
