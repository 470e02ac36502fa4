// Package validation provides helpers for contract enforcement in constructors.
package validation

import (
	"fmt"
	"reflect"
)

// AssertNotNil panics if the provided pointer is nil.
// It is intended for constructors where dependencies are mandatory.
//
// Usage:
//
//	validation.AssertNotNil(db, "database pool")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertDependency panics if dep is a nil interface or an interface holding a nil pointer.
// Repositories and caches are injected as interfaces, so a plain == nil check misses
// the typed-nil case.
func AssertDependency(dep any, name string) {
	if dep == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
	v := reflect.ValueOf(dep)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			panic(fmt.Sprintf("critical error: %s cannot be nil", name))
		}
	}
}

// Note: panics here signal PROGRAMMER ERROR (misconfiguration),
// not runtime errors (like "network down").
