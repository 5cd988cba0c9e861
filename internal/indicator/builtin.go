package indicator

// Builtins returns fresh descriptors for every built-in indicator.
func Builtins() []*Descriptor {
	return []*Descriptor{
		NewEMA(),
		NewMACD(),
		NewDMI(),
		NewCR(),
		NewVR(),
		NewMA(),
		NewSMMA(),
		NewRSI(),
	}
}

// NewDefaultRegistry returns a registry holding every built-in.
func NewDefaultRegistry(policy DuplicatePolicy) *Registry {
	r := NewRegistry(policy)
	for _, d := range Builtins() {
		// built-in defaults are valid and names are distinct
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}
