package sandbox

import (
	"reflect"

	"github.com/dop251/goja"

	"github.com/hazyhaar/compick/page"
)

// value is a page.Value backed by a goja value living in d's realm.
type value struct {
	d *Document
	v goja.Value
}

func (d *Document) val(v goja.Value) page.Value {
	if v == nil {
		return page.Undefined
	}
	return value{d: d, v: v}
}

func (x value) Kind() page.Kind {
	switch {
	case x.v == nil || goja.IsUndefined(x.v):
		return page.KindUndefined
	case goja.IsNull(x.v):
		return page.KindNull
	}

	switch t := x.v.(type) {
	case *goja.Symbol:
		return page.KindSymbol
	case *goja.Object:
		if _, ok := goja.AssertFunction(t); ok {
			return page.KindFunction
		}
		return page.KindObject
	}

	et := x.v.ExportType()
	if et == nil {
		return page.KindUndefined
	}
	switch et.Kind() {
	case reflect.String:
		return page.KindString
	case reflect.Bool:
		return page.KindBool
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint32, reflect.Uint64, reflect.Float32, reflect.Float64:
		return page.KindNumber
	}
	return page.KindObject
}

func (x value) Get(key string) page.Value {
	obj, ok := x.v.(*goja.Object)
	if !ok {
		return page.Undefined
	}
	x.d.mu.Lock()
	defer x.d.mu.Unlock()
	if x.d.Failed() {
		return page.Undefined
	}

	var out goja.Value
	if !x.d.guard(func() { out = obj.Get(key) }) {
		return page.Undefined
	}
	return x.d.val(out)
}

func (x value) Keys() []string {
	obj, ok := x.v.(*goja.Object)
	if !ok {
		return nil
	}
	x.d.mu.Lock()
	defer x.d.mu.Unlock()
	if x.d.Failed() {
		return nil
	}

	var keys []string
	x.d.guard(func() { keys = obj.Keys() })
	return keys
}

func (x value) Str() string {
	if x.Kind() != page.KindString {
		return ""
	}
	return x.v.String()
}

func (x value) Num() float64 {
	if x.Kind() != page.KindNumber {
		return 0
	}
	return x.v.ToFloat()
}

func (x value) Symbol() string {
	sym, ok := x.v.(*goja.Symbol)
	if !ok {
		return ""
	}
	x.d.mu.Lock()
	defer x.d.mu.Unlock()

	var key string
	x.d.guard(func() {
		res, err := x.d.keyFor(goja.Undefined(), sym)
		if err != nil {
			panic(err)
		}
		key = res.String()
	})
	return key
}

func (x value) Identity() any {
	switch t := x.v.(type) {
	case *goja.Object:
		return t
	case *goja.Symbol:
		return t
	}
	if x.v == nil {
		return nil
	}
	return x.v.Export()
}
