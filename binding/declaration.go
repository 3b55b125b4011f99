package binding

import (
	"reflect"

	"github.com/glimte/aspect-go/contracts"
)

// TypeDeclaration collects the bindings declared on one type
type TypeDeclaration struct {
	catalog  *Catalog
	typ      reflect.Type
	bindings []contracts.Binding
	methods  map[string]*MethodDeclaration
	order    []string
}

// Type returns the declared type
func (d *TypeDeclaration) Type() reflect.Type {
	return d.typ
}

// Bind adds type-level bindings; they apply to every eligible method
func (d *TypeDeclaration) Bind(bindings ...contracts.Binding) *TypeDeclaration {
	d.catalog.mu.Lock()
	defer d.catalog.mu.Unlock()

	d.bindings = append(d.bindings, bindings...)
	return d
}

// Method returns the declaration for the named method, creating it on first use
func (d *TypeDeclaration) Method(name string) *MethodDeclaration {
	d.catalog.mu.Lock()
	defer d.catalog.mu.Unlock()

	m, exists := d.methods[name]
	if !exists {
		m = &MethodDeclaration{parent: d, name: name}
		d.methods[name] = m
		d.order = append(d.order, name)
	}
	return m
}

// MethodDeclaration collects the bindings and annotations of one method
type MethodDeclaration struct {
	parent      *TypeDeclaration
	name        string
	bindings    []contracts.Binding
	annotations []any
}

// Name returns the method name
func (m *MethodDeclaration) Name() string {
	return m.name
}

// Bind adds method-level bindings
func (m *MethodDeclaration) Bind(bindings ...contracts.Binding) *MethodDeclaration {
	m.parent.catalog.mu.Lock()
	defer m.parent.catalog.mu.Unlock()

	m.bindings = append(m.bindings, bindings...)
	return m
}

// Annotate attaches policies (*contracts.HandleError, *contracts.WriteLog,
// *contracts.NoteElapsedTime) and user markers to the method.
func (m *MethodDeclaration) Annotate(annotations ...any) *MethodDeclaration {
	m.parent.catalog.mu.Lock()
	defer m.parent.catalog.mu.Unlock()

	m.annotations = append(m.annotations, annotations...)
	return m
}

// HandleError is shorthand for Annotate with an error policy
func (m *MethodDeclaration) HandleError(policy *contracts.HandleError) *MethodDeclaration {
	return m.Annotate(policy)
}

// WriteLog is shorthand for Annotate with a log policy active in every variant
func (m *MethodDeclaration) WriteLog(moment contracts.LogMoment, content string) *MethodDeclaration {
	return m.Annotate(&contracts.WriteLog{Moment: moment, Content: content})
}

// NoteElapsedTime is shorthand for Annotate with a timing policy
func (m *MethodDeclaration) NoteElapsedTime(mode contracts.TimingMode, variant contracts.Variant) *MethodDeclaration {
	return m.Annotate(&contracts.NoteElapsedTime{Mode: mode, Variant: variant})
}
