package contracts

// Marker is implemented by user-defined annotations that are handed to
// interceptors through the invocation views.
type Marker interface {
	AspectMarker()
}

// MarkerBase can be embedded to satisfy Marker
type MarkerBase struct{}

// AspectMarker implements Marker
func (MarkerBase) AspectMarker() {}

// FilterMarkers returns the annotations that implement Marker, in order
func FilterMarkers(annotations []any) []Marker {
	var markers []Marker
	for _, a := range annotations {
		if m, ok := a.(Marker); ok {
			markers = append(markers, m)
		}
	}
	return markers
}
