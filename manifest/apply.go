package manifest

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/glimte/aspect-go/binding"
	"github.com/glimte/aspect-go/contracts"
)

// ErrUnresolvedName is wrapped when a type or error name is not registered
var ErrUnresolvedName = errors.New("manifest: name not registered")

var errorInterface = reflect.TypeFor[error]()

// TypeResolver resolves registered type names. *activation.TypeRegistry
// implements it.
type TypeResolver interface {
	Get(typeName string) (reflect.Type, error)
}

type methodPlan struct {
	name        string
	bindings    []contracts.Binding
	annotations []any
}

type typePlan struct {
	typ      reflect.Type
	bindings []contracts.Binding
	methods  []methodPlan
}

// Apply declares the manifest's bindings and policies in catalog. Names are
// resolved against types first; nothing is declared unless every name
// resolves and every method exists.
func (m *Manifest) Apply(catalog *binding.Catalog, types TypeResolver) error {
	plans, err := m.resolve(types)
	if err != nil {
		return err
	}

	for _, plan := range plans {
		decl := catalog.Type(plan.typ)
		if len(plan.bindings) > 0 {
			decl.Bind(plan.bindings...)
		}
		for _, method := range plan.methods {
			md := decl.Method(method.name)
			if len(method.bindings) > 0 {
				md.Bind(method.bindings...)
			}
			if len(method.annotations) > 0 {
				md.Annotate(method.annotations...)
			}
		}
	}
	return nil
}

// Check resolves every name in the manifest against types without touching a
// catalog. All problems found are reported.
func (m *Manifest) Check(types TypeResolver) error {
	_, err := m.resolve(types)
	return err
}

func (m *Manifest) resolve(types TypeResolver) ([]typePlan, error) {
	var errs []error
	plans := make([]typePlan, 0, len(m.Types))

	for i, entry := range m.Types {
		path := fmt.Sprintf("types[%d]", i)
		t, err := resolveType(types, entry.Type)
		if err != nil {
			errs = append(errs, &Error{Path: path, Err: err})
			continue
		}

		plan := typePlan{typ: t, bindings: bindingsOf(entry.Bindings)}
		for j, method := range entry.Methods {
			mpath := fmt.Sprintf("%s.methods[%d]", path, j)
			if _, ok := binding.MethodByName(t, method.Name); !ok {
				errs = append(errs, &Error{Path: mpath, Err: fmt.Errorf("%w: %s.%s", contracts.ErrUnknownMethod, entry.Type, method.Name)})
				continue
			}

			annotations, annErrs := annotationsOf(types, mpath, method)
			errs = append(errs, annErrs...)
			plan.methods = append(plan.methods, methodPlan{
				name:        method.Name,
				bindings:    bindingsOf(method.Bindings),
				annotations: annotations,
			})
		}
		plans = append(plans, plan)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return plans, nil
}

func resolveType(types TypeResolver, name string) (reflect.Type, error) {
	t, err := types.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: type %s: %v", ErrUnresolvedName, name, err)
	}
	normalized, err := binding.Normalize(t)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

func annotationsOf(types TypeResolver, path string, method MethodEntry) ([]any, []error) {
	var annotations []any
	var errs []error

	for i, h := range method.HandleErrors {
		hpath := fmt.Sprintf("%s.handle_errors[%d]", path, i)
		errType, err := types.Get(h.Error)
		if err != nil {
			errs = append(errs, &Error{Path: hpath, Err: fmt.Errorf("%w: error %s: %v", ErrUnresolvedName, h.Error, err)})
			continue
		}
		if !errType.Implements(errorInterface) {
			errs = append(errs, invalid(hpath, "%s does not implement error", h.Error))
			continue
		}
		annotations = append(annotations, h.policy(errType))
	}

	for _, w := range method.WriteLogs {
		annotations = append(annotations, &contracts.WriteLog{
			Moment:  w.Moment,
			Content: w.Content,
			Variant: w.Variant,
		})
	}

	if method.ElapsedTime != nil {
		annotations = append(annotations, &contracts.NoteElapsedTime{
			Mode:    method.ElapsedTime.Mode,
			Variant: method.ElapsedTime.Variant,
		})
	}

	return annotations, errs
}

func (h HandleErrorEntry) policy(errType reflect.Type) *contracts.HandleError {
	strategy := contracts.StrategyRethrow
	if h.Strategy != nil {
		strategy = *h.Strategy
	}
	policy := contracts.NewHandleError(errType, strategy)
	if h.Log != nil {
		policy.Log = *h.Log
	}
	policy.ReturnValue = h.ReturnValue
	policy.ExtraMessage = h.ExtraMessage
	policy.Variant = h.Variant
	return policy
}

func bindingsOf(entries []BindingEntry) []contracts.Binding {
	if len(entries) == 0 {
		return nil
	}
	bindings := make([]contracts.Binding, len(entries))
	for i, entry := range entries {
		bindings[i] = entry.binding()
	}
	return bindings
}
