package sandbox

import (
	"errors"
	"reflect"
	"testing"

	"github.com/andreyvit/stdb"
	"github.com/andreyvit/stdb/internal/demomodule"
)

func TestRowJSON_person(t *testing.T) {
	def := demomodule.Define().Describe()
	rowType := must(def.RowType(def.TableNamed("person")))
	data := must(stdb.Marshal(demomodule.Person{ID: 7, Name: "Ann \"A\"", Age: 10}))
	deepEq(t, string(must(RowJSON(def.Typespace, rowType, data))), `{"id":7,"name":"Ann \"A\"","age":10}`)
}

func TestEncodeJSON_reducerArgs(t *testing.T) {
	def := demomodule.Define().Describe()
	_, rd := def.ReducerNamed("add_person")
	a := must(EncodeJSON(def.Typespace, rd.Params, []byte(`{"age": 30, "name": "Bob"}`)))
	deepEq(t, a, must(stdb.Marshal(demomodule.AddPersonArgs{Name: "Bob", Age: 30})))

	_, rd = def.ReducerNamed("remind")
	a = must(EncodeJSON(def.Typespace, rd.Params, []byte(`{"message":"tea","delay":{"__time_duration_micros__":"90000000"}}`)))
	deepEq(t, a, must(stdb.Marshal(demomodule.RemindArgs{Message: "tea", Delay: 90_000_000})))
}

func TestEncodeJSON_roundTrip(t *testing.T) {
	ts := stdb.NewTypespace()
	ty := stdb.Product(
		stdb.Field("n", stdb.U128Type),
		stdb.Field("tag", stdb.OptionOf(stdb.StringType)),
		stdb.Field("blob", stdb.ArrayOf(stdb.U8Type)),
		stdb.Field("shape", stdb.Sum(stdb.Variant("circle", stdb.F64Type), stdb.Variant("empty", stdb.UnitType))),
		stdb.Field("xs", stdb.ArrayOf(stdb.I16Type)),
		stdb.Field("", stdb.BoolType),
	)
	tests := []struct {
		in, out string
	}{
		{
			`{"n":"340282366920938463463374607431768211455","blob":"0aff","shape":{"circle":1.5},"xs":[-1,2],"_5":true}`,
			`{"n":"340282366920938463463374607431768211455","tag":null,"blob":"0aff","shape":{"circle":1.5},"xs":[-1,2],"_5":true}`,
		},
		{
			`{"n":5,"tag":"x","blob":"","shape":{"empty":{}},"xs":[],"_5":false}`,
			`{"n":"5","tag":"x","blob":"","shape":{"empty":{}},"xs":[],"_5":false}`,
		},
	}
	for _, tt := range tests {
		data, err := EncodeJSON(ts, ty, []byte(tt.in))
		if err != nil {
			t.Errorf("** EncodeJSON(%s) failed: %v", tt.in, err)
			continue
		}
		deepEq(t, string(must(RowJSON(ts, ty, data))), tt.out)
	}
}

func TestEncodeJSON_errors(t *testing.T) {
	def := demomodule.Define().Describe()
	_, rd := def.ReducerNamed("add_person")
	bad := []string{
		`{"name":"Bob"}`,
		`{"name":"Bob","age":30,"extra":1}`,
		`{"name":"Bob","age":30,"age":31}`,
		`{"name":"Bob","age":300}`,
		`{"name":"Bob","age":-1}`,
		`{"name":"Bob","age":1.5}`,
		`{"name":5,"age":30}`,
		`["Bob",30]`,
		`{"name":"Bob","age":30} {}`,
	}
	for _, in := range bad {
		_, err := EncodeJSON(def.Typespace, rd.Params, []byte(in))
		if !errors.Is(err, ErrBadJSON) {
			t.Errorf("** EncodeJSON(%s) = %v, wanted %v", in, err, ErrBadJSON)
		}
	}

	_, err := EncodeJSON(def.Typespace, rd.Params, []byte(`{"name":`))
	if err == nil {
		t.Errorf("** truncated JSON accepted")
	}

	ty := stdb.Sum(stdb.Variant("a", stdb.U8Type), stdb.Variant("b", stdb.U8Type))
	for _, in := range []string{`{"a":1,"b":2}`, `{"c":1}`, `{}`} {
		_, err := EncodeJSON(stdb.NewTypespace(), ty, []byte(in))
		if err == nil {
			t.Errorf("** EncodeJSON(%s) accepted a bad sum", in)
		}
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func deepEq[T any](t testing.TB, a, e T) bool {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}
