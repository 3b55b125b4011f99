package dispatch

import (
	"reflect"

	"github.com/glimte/aspect-go/contracts"
)

// policies are the annotations resolved for one call
type policies struct {
	errorPolicies []*contracts.HandleError
	logs          []*contracts.WriteLog
	timing        *contracts.NoteElapsedTime
	markers       []contracts.Marker
}

// collectAnnotations gathers the annotations of every identity, dropping
// values equal to one already collected.
func collectAnnotations(source AnnotationSource, ids []contracts.MethodIdentity) []any {
	if source == nil {
		return nil
	}

	var all []any
	for _, id := range ids {
		for _, a := range source.Annotations(id) {
			if !containsAnnotation(all, a) {
				all = append(all, a)
			}
		}
	}
	return all
}

func containsAnnotation(list []any, a any) bool {
	for _, existing := range list {
		if existing == a || reflect.DeepEqual(existing, a) {
			return true
		}
	}
	return false
}

// classify sorts annotations into the policy kinds the dispatcher acts on.
// Only the first timing policy is honoured.
func classify(annotations []any) policies {
	var p policies
	for _, a := range annotations {
		switch v := a.(type) {
		case *contracts.HandleError:
			if v != nil {
				p.errorPolicies = append(p.errorPolicies, v)
			}
		case *contracts.WriteLog:
			if v != nil {
				p.logs = append(p.logs, v)
			}
		case *contracts.NoteElapsedTime:
			if v != nil && p.timing == nil {
				p.timing = v
			}
		}
	}
	p.markers = contracts.FilterMarkers(annotations)
	return p
}
