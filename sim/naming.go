package sim

import "strings"

// A Named object is an object that has a name.
type Named interface {
	Name() string
}

// NameMustBeValid panics if the name cannot be used to identify a signal,
// process or buffer. Names are dot- or underscore-separated tokens without
// white space.
func NameMustBeValid(name string) {
	if name == "" {
		panic("name must not be empty")
	}

	if strings.ContainsAny(name, " \t\n") {
		panic("name " + name + " must not contain white space")
	}

	for _, token := range strings.Split(name, ".") {
		if token == "" {
			panic("name " + name + " has an empty element")
		}
	}
}
