package reading

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestAbsentIsNotZero(t *testing.T) {
	is := is.New(t)

	r := NewBuilder(2).
		Set("pv1_power", Number(0, "W")).
		Build()

	v, ok := r.Get("pv1_power")
	is.True(ok)
	is.Equal(v.Number, 0.0)

	_, ok = r.Get("pv3_power")
	is.True(!ok)
}

func TestEditDoesNotTouchOriginal(t *testing.T) {
	is := is.New(t)

	r := NewBuilder(1).Set("energy_today", Number(3.2, "kWh")).Build()
	next := r.Edit().Set("energy_today", Number(0, "kWh")).Delete("x").Build()

	a, _ := r.Number("energy_today")
	b, _ := next.Number("energy_today")
	is.Equal(a, 3.2)
	is.Equal(b, 0.0)
}

func TestJSONShape(t *testing.T) {
	is := is.New(t)

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewBuilder(2).
		Set("status", Text("offline")).
		Set("energy_total", Number(910.4, "kWh")).
		Build().
		WithTime(at, false)

	raw, err := json.Marshal(r)
	is.NoErr(err)

	var out struct {
		Online bool                   `json:"online"`
		Values map[string]interface{} `json:"values"`
	}
	is.NoErr(json.Unmarshal(raw, &out))
	is.True(!out.Online)
	is.Equal(out.Values["status"], "offline")
	is.Equal(out.Values["energy_total"], 910.4)
}

func TestNamesSorted(t *testing.T) {
	is := is.New(t)

	r := NewBuilder(3).
		Set("b", Number(1, "")).
		Set("a", Number(1, "")).
		Set("c", Text("x")).
		Build()

	is.Equal(r.Names(), []string{"a", "b", "c"})
}
