package transcoder

import (
	"reflect"
	"testing"
)

type compileBase struct {
	ID int
}

type compileTarget struct {
	compileBase
	UserName string
	Alias    string `host:"nick,omitempty"`
	Note     *string
	Extra    int `host:",optional"`
	Skipped  int `host:"-"`
	hidden   int
}

func TestCompiler_Fields(t *testing.T) {
	c := NewCompiler()
	plan, err := c.Compile(reflect.TypeOf(compileTarget{}))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	want := []string{"id", "user_name", "nick", "note", "extra"}
	if len(plan.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(plan.Fields), len(want))
	}
	for i, name := range want {
		if plan.Fields[i].HostName != name {
			t.Errorf("field %d: got %q, want %q", i, plan.Fields[i].HostName, name)
		}
	}

	id, ok := plan.Lookup("id")
	if !ok || !reflect.DeepEqual(id.Index, []int{0, 0}) {
		t.Errorf("embedded field index: got %v", id)
	}
	if f, _ := plan.Lookup("nick"); !f.OmitEmpty || f.Optional {
		t.Errorf("nick flags: %+v", f)
	}
	if f, _ := plan.Lookup("note"); !f.Optional {
		t.Error("pointer field should be optional")
	}
	if f, _ := plan.Lookup("extra"); !f.Optional {
		t.Error("tagged optional field should be optional")
	}
	if _, ok := plan.Lookup("skipped"); ok {
		t.Error("field tagged - should be skipped")
	}
}

func TestCompiler_Cache(t *testing.T) {
	c := NewCompiler()
	p1, err := c.Compile(reflect.TypeOf(compileTarget{}))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := c.Compile(reflect.TypeOf(&compileTarget{}))
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Error("pointer and value type should share a cached plan")
	}
}

func TestCompiler_Errors(t *testing.T) {
	c := NewCompiler()

	if _, err := c.Compile(nil); err == nil {
		t.Error("expected error for nil type")
	}
	if _, err := c.Compile(reflect.TypeOf(42)); err == nil {
		t.Error("expected error for non-struct type")
	}

	type dup struct {
		A int `host:"x"`
		B int `host:"x"`
	}
	if _, err := c.Compile(reflect.TypeOf(dup{})); err == nil {
		t.Error("expected duplicate name error")
	}

	type badName struct {
		A int `host:"not-valid"`
	}
	if _, err := c.Compile(reflect.TypeOf(badName{})); err == nil {
		t.Error("expected invalid identifier error")
	}
}
