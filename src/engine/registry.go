package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kgroat/camouflage/src/models"
	"go.uber.org/zap"
)

const (
	idField    = "_id"
	aliasField = "id"
)

// Hook is a lifecycle callback. A non-nil error aborts the remaining phases.
type Hook func(ctx context.Context, doc *Document) error

// Hooks are no-ops unless set.
type Hooks struct {
	PreValidate  Hook
	PostValidate Hook
	PreSave      Hook
	PostSave     Hook
	PreDelete    Hook
	PostDelete   Hook
}

// Virtual is a computed, read-only property. Virtuals surface through Get
// and in ToSerializable but are never persisted.
type Virtual struct {
	Name string
	Get  func(doc *Document) interface{}
}

// ModelDef declares a model.
//
// Fields whose name starts with an underscore are helper properties: they
// are not part of the schema, never persisted, and their Decl is the
// initial value (a literal or a func() interface{}).
type ModelDef struct {
	Name string

	// Collection defaults to the lower-cased name plus "s".
	Collection string

	// Embedded models have no identity and live inside their owner.
	Embedded bool

	Fields   []Field
	Hooks    Hooks
	Virtuals []Virtual
}

// Model is a defined document type.
type Model struct {
	name       string
	collection string
	embedded   bool
	reg        *Registry

	mu        sync.Mutex
	decls     []Field
	schema    *Schema
	helpers   []Field
	generated bool

	hooks    Hooks
	virtuals []Virtual
}

func (m *Model) Name() string { return m.name }

func (m *Model) Collection() string { return m.collection }

func (m *Model) IsEmbedded() bool { return m.embedded }

func (m *Model) Registry() *Registry { return m.reg }

// Fields returns the schema field names in order, _id first for documents.
func (m *Model) Fields() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schema.Names()
}

func (m *Model) Spec(name string) (FieldSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schema.Spec(name)
}

// GenerateSchema normalises the declared fields into the schema. Calling it
// more than once is harmless.
func (m *Model) GenerateSchema() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateLocked()
}

func (m *Model) generateLocked() error {
	if m.generated {
		return nil
	}

	schema := newSchema()
	if !m.embedded {
		schema.put(idField, FieldSpec{Type: idType})
	}

	var helperFields []Field
	for _, f := range m.decls {
		if f.Name == "" {
			return &SchemaError{Model: m.name, Reason: "field without a name"}
		}
		if isHelperName(f.Name) {
			helperFields = append(helperFields, f)
			continue
		}
		if f.Name == aliasField {
			return &SchemaError{Model: m.name, Field: f.Name, Reason: "id is reserved as an alias of _id"}
		}
		spec, err := NormalizeType(f.Decl)
		if err != nil {
			return &SchemaError{Model: m.name, Field: f.Name, Reason: errUnsupportedType}
		}
		schema.put(f.Name, spec)
	}

	m.schema = schema
	m.helpers = helperFields
	m.generated = true
	return nil
}

// Schema merges extra declarations into the model. Later declarations win
// by field name. Instances created before the call keep their schema.
func (m *Model) Schema(ext ...Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.generateLocked(); err != nil {
		return err
	}

	next := m.schema.clone()
	helperFields := append([]Field(nil), m.helpers...)
	for _, f := range ext {
		if isHelperName(f.Name) {
			helperFields = append(helperFields, f)
			continue
		}
		if f.Name == "" || f.Name == aliasField || f.Name == idField {
			return &SchemaError{Model: m.name, Field: f.Name, Reason: "reserved or empty field name"}
		}
		spec, err := NormalizeType(f.Decl)
		if err != nil {
			return &SchemaError{Model: m.name, Field: f.Name, Reason: errUnsupportedType}
		}
		next.put(f.Name, spec)
	}

	m.decls = append(m.decls, ext...)
	m.schema = next
	m.helpers = helperFields
	return nil
}

// snapshot returns the current schema and helper declarations.
func (m *Model) snapshot() (*Schema, []Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schema, m.helpers
}

func (m *Model) backend() (models.Backend, error) {
	if m.reg.backend == nil {
		return nil, ErrNoBackend
	}
	return m.reg.backend, nil
}

func (m *Model) requireIdentity(method string) error {
	if m.embedded {
		return &NotOverriddenError{Model: m.name, Method: method}
	}
	return nil
}

// Registry holds the models of one application and the backend they are
// stored in.
type Registry struct {
	mu      sync.RWMutex
	models  map[string]*Model
	backend models.Backend
	logger  *zap.SugaredLogger
}

// NewRegistry creates a registry. A nil logger discards log output.
func NewRegistry(backend models.Backend, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		models:  make(map[string]*Model),
		backend: backend,
		logger:  logger,
	}
}

func (r *Registry) Backend() models.Backend { return r.backend }

// Define registers a model and builds its schema.
func (r *Registry) Define(def ModelDef) (*Model, error) {
	if def.Name == "" {
		return nil, &SchemaError{Reason: "model without a name"}
	}

	collection := def.Collection
	if collection == "" {
		collection = strings.ToLower(def.Name) + "s"
	}

	m := &Model{
		name:       def.Name,
		collection: collection,
		embedded:   def.Embedded,
		reg:        r,
		decls:      append([]Field(nil), def.Fields...),
		hooks:      def.Hooks,
		virtuals:   append([]Virtual(nil), def.Virtuals...),
	}
	if err := m.GenerateSchema(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[def.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrModelExists, def.Name)
	}
	r.models[def.Name] = m

	r.logger.Debugw("Defined model",
		"model", m.name,
		"collection", m.collection,
		"embedded", m.embedded,
		"fields", m.schema.Len())

	return m, nil
}

// MustDefine is Define for package level model variables.
func (r *Registry) MustDefine(def ModelDef) *Model {
	m, err := r.Define(def)
	if err != nil {
		panic(err)
	}
	return m
}

func (r *Registry) Model(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// resolve looks up the model a reference or embedded type points at.
func (r *Registry) resolve(owner, field string, t FieldType) (*Model, error) {
	m, ok := r.Model(t.Model)
	if !ok {
		return nil, &SchemaError{Model: owner, Field: field, Reason: fmt.Sprintf("%v %s", ErrUnknownModel, t.Model)}
	}
	if t.Kind == KindEmbedded && !m.embedded {
		return nil, &SchemaError{Model: owner, Field: field, Reason: fmt.Sprintf("%s is not an embedded model", t.Model)}
	}
	if t.Kind == KindReference && m.embedded {
		return nil, &SchemaError{Model: owner, Field: field, Reason: fmt.Sprintf("%s is embedded and cannot be referenced", t.Model)}
	}
	return m, nil
}

func (r *Registry) isNativeID(value interface{}) bool {
	if r.backend == nil {
		return false
	}
	return r.backend.IsNativeID(value)
}

// isID accepts native ids and anything shaped like one.
func (r *Registry) isID(value interface{}) bool {
	return r.isNativeID(value) || looksLikeID(value)
}

func (r *Registry) canonicalID(id interface{}) interface{} {
	if id == nil {
		return nil
	}
	if r.backend == nil {
		if s, ok := id.(string); ok {
			return s
		}
		return fmt.Sprint(id)
	}
	return r.backend.ToCanonicalID(id)
}

func (r *Registry) nativeID(id interface{}) interface{} {
	if id == nil || r.backend == nil {
		return id
	}
	if s, ok := id.(string); ok {
		return r.backend.NativeID(s)
	}
	return id
}
