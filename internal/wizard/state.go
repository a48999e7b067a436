package wizard

// Field is one collected value.
type Field struct {
	Name  string
	Value string
}

// Record is the ordered list of collected fields, in prompt order.
type Record []Field

// Get returns the value stored under name, or "".
func (r Record) Get(name string) string {
	for _, f := range r {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Map returns the record as a map. Order is lost.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r))
	for _, f := range r {
		m[f.Name] = f.Value
	}
	return m
}

// State is one identity's in-progress wizard.
// Collected always holds exactly the fields of the steps before Step.
type State struct {
	Kind      string
	Step      int
	Collected Record
	Params    map[string]string
}

// Param returns a start parameter, or "".
func (s *State) Param(key string) string {
	return s.Params[key]
}

// Slots stores at most one State per identity.
type Slots interface {
	Wizard(id int64) (*State, bool)
	PutWizard(id int64, state *State)
	ClearWizard(id int64)
}
