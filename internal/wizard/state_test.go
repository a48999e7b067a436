package wizard

import "testing"

func TestRecord_GetAndMap(t *testing.T) {
	r := Record{{"name", "web"}, {"proto", "tcp"}}

	if r.Get("proto") != "tcp" {
		t.Errorf("Get(proto) = %q", r.Get("proto"))
	}
	if r.Get("missing") != "" {
		t.Error("missing field should be empty")
	}
	m := r.Map()
	if len(m) != 2 || m["name"] != "web" {
		t.Errorf("Map() = %v", m)
	}
}

func TestState_Param(t *testing.T) {
	s := &State{Params: map[string]string{"section": "homeops_web"}}
	if s.Param("section") != "homeops_web" {
		t.Error("Param lookup failed")
	}
	var empty State
	if empty.Param("x") != "" {
		t.Error("nil params should read as empty")
	}
}
