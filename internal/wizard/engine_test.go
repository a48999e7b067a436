package wizard

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type memSlots map[int64]*State

func (m memSlots) Wizard(id int64) (*State, bool) { s, ok := m[id]; return s, ok }
func (m memSlots) PutWizard(id int64, s *State)   { m[id] = s }
func (m memSlots) ClearWizard(id int64)           { delete(m, id) }

type commitRecorder struct {
	calls []Commit
	err   error
}

func (r *commitRecorder) commit(_ context.Context, c Commit) (string, error) {
	r.calls = append(r.calls, c)
	if r.err != nil {
		return "", r.err
	}
	return "done: " + c.Record.Get("name"), nil
}

func redirectTemplate(rec *commitRecorder) *Template {
	return &Template{
		Kind:  "fw_redirect",
		Title: "Add port forward",
		Steps: []Step{
			{Field: "name", Prompt: "Rule name", Validate: Name},
			{Field: "ext_port", Prompt: "External port", Validate: Port},
			{Field: "int_ip", Prompt: "Internal IP", Validate: IPv4},
			{Field: "int_port", Prompt: "Internal port", Validate: Port},
			{Field: "proto", Prompt: "Protocol", Options: []Option{
				{Label: "TCP", Value: "tcp"},
				{Label: "UDP", Value: "udp"},
				{Label: "TCP+UDP", Value: "tcp udp"},
			}},
		},
		Commit: rec.commit,
	}
}

func newEngine(templates ...*Template) (*Engine, memSlots) {
	slots := memSlots{}
	e := NewEngine(slots)
	for _, t := range templates {
		e.Register(t)
	}
	return e, slots
}

func mustReply(t *testing.T, e *Engine, id int64, text string) Outcome {
	t.Helper()
	out, err := e.Reply(context.Background(), id, id, text)
	if err != nil {
		t.Fatalf("Reply(%q) error: %v", text, err)
	}
	return out
}

func TestEngine_RedirectScenario(t *testing.T) {
	rec := &commitRecorder{}
	e, slots := newEngine(redirectTemplate(rec))

	out, err := e.Start(1, "fw_redirect", nil)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if out.Status != Prompted || out.Step != 0 {
		t.Fatalf("Start outcome = %+v", out)
	}

	for _, in := range []string{"web", "8080", "192.168.1.50", "80"} {
		out = mustReply(t, e, 1, in)
		if out.Status != Prompted {
			t.Fatalf("Reply(%q) status = %v, reason %q", in, out.Status, out.Reason)
		}
	}
	if step, _ := out.Current(); !step.IsChoice() {
		t.Fatal("expected choice step after four replies")
	}
	if len(rec.calls) != 0 {
		t.Fatal("commit before choice")
	}

	out, err = e.Choose(context.Background(), 1, 1, 0)
	if err != nil {
		t.Fatalf("Choose() error: %v", err)
	}
	if out.Status != Committed {
		t.Fatalf("status = %v, want Committed", out.Status)
	}
	if out.Result != "done: web" {
		t.Errorf("Result = %q", out.Result)
	}

	want := Record{
		{"name", "web"},
		{"ext_port", "8080"},
		{"int_ip", "192.168.1.50"},
		{"int_port", "80"},
		{"proto", "tcp"},
	}
	if len(rec.calls) != 1 {
		t.Fatalf("commit calls = %d, want 1", len(rec.calls))
	}
	if !reflect.DeepEqual(rec.calls[0].Record, want) {
		t.Errorf("record = %v, want %v", rec.calls[0].Record, want)
	}
	if _, ok := slots[1]; ok {
		t.Error("state must be destroyed after commit")
	}
}

func TestEngine_FewerRepliesNeverCommit(t *testing.T) {
	rec := &commitRecorder{}
	e, slots := newEngine(redirectTemplate(rec))
	e.Start(1, "fw_redirect", nil)

	mustReply(t, e, 1, "web")
	mustReply(t, e, 1, "8080")

	if len(rec.calls) != 0 {
		t.Error("commit must not run early")
	}
	st := slots[1]
	if st.Step != 2 || len(st.Collected) != 2 {
		t.Errorf("state = %+v", st)
	}
}

func TestEngine_RejectionKeepsStep(t *testing.T) {
	tests := []struct {
		name       string
		prefix     []string
		bad        string
		wantReason string
	}{
		{"name with dash", nil, "my-rule", "only letters"},
		{"name empty", nil, "   ", "must not be empty"},
		{"port not a number", []string{"web"}, "eighty", "non-negative"},
		{"negative port", []string{"web"}, "-1", "non-negative"},
		{"port out of range", []string{"web"}, "70000", "65535"},
		{"bad ip", []string{"web", "8080"}, "192.168.1", "IPv4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &commitRecorder{}
			e, slots := newEngine(redirectTemplate(rec))
			e.Start(1, "fw_redirect", nil)
			for _, in := range tt.prefix {
				mustReply(t, e, 1, in)
			}
			before := append(Record(nil), slots[1].Collected...)

			out := mustReply(t, e, 1, tt.bad)

			if out.Status != Rejected {
				t.Fatalf("status = %v, want Rejected", out.Status)
			}
			if !strings.Contains(out.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", out.Reason, tt.wantReason)
			}
			if slots[1].Step != len(tt.prefix) {
				t.Errorf("step = %d, want %d", slots[1].Step, len(tt.prefix))
			}
			if !reflect.DeepEqual(slots[1].Collected, before) {
				t.Errorf("collected changed: %v -> %v", before, slots[1].Collected)
			}
		})
	}
}

func TestEngine_TextAtChoiceStepRejected(t *testing.T) {
	rec := &commitRecorder{}
	e, _ := newEngine(redirectTemplate(rec))
	e.Start(1, "fw_redirect", nil)
	for _, in := range []string{"web", "8080", "192.168.1.50", "80"} {
		mustReply(t, e, 1, in)
	}

	out := mustReply(t, e, 1, "tcp")
	if out.Status != Rejected || out.Step != 4 {
		t.Errorf("outcome = %+v", out)
	}
	if len(rec.calls) != 0 {
		t.Error("typed text must not select an option")
	}
}

func TestEngine_ChooseOutsideChoiceStep(t *testing.T) {
	rec := &commitRecorder{}
	e, slots := newEngine(redirectTemplate(rec))
	e.Start(1, "fw_redirect", nil)

	out, err := e.Choose(context.Background(), 1, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != Rejected {
		t.Errorf("status = %v, want Rejected", out.Status)
	}
	if slots[1].Step != 0 {
		t.Error("step must not move")
	}
}

func TestEngine_ChooseIndexOutOfRange(t *testing.T) {
	rec := &commitRecorder{}
	e, _ := newEngine(redirectTemplate(rec))
	e.Start(1, "fw_redirect", nil)
	for _, in := range []string{"web", "8080", "192.168.1.50", "80"} {
		mustReply(t, e, 1, in)
	}

	out, _ := e.Choose(context.Background(), 1, 1, 9)
	if out.Status != Rejected {
		t.Errorf("status = %v, want Rejected", out.Status)
	}
}

func TestEngine_StartOverwritesActiveWizard(t *testing.T) {
	recA := &commitRecorder{}
	recB := &commitRecorder{}
	a := redirectTemplate(recA)
	b := &Template{
		Kind: "net_ping",
		Steps: []Step{
			{Field: "target", Prompt: "Host", Validate: NetTarget},
		},
		Commit: recB.commit,
	}
	e, slots := newEngine(a, b)

	e.Start(1, "fw_redirect", nil)
	mustReply(t, e, 1, "web")
	mustReply(t, e, 1, "8080")

	if _, err := e.Start(1, "net_ping", nil); err != nil {
		t.Fatal(err)
	}
	if slots[1].Kind != "net_ping" || slots[1].Step != 0 || len(slots[1].Collected) != 0 {
		t.Fatalf("state = %+v, want fresh net_ping", slots[1])
	}

	out := mustReply(t, e, 1, "example.com")
	if out.Status != Committed {
		t.Fatalf("status = %v", out.Status)
	}
	if len(recA.calls) != 0 {
		t.Error("discarded wizard must never commit")
	}
	if got := recB.calls[0].Record.Get("target"); got != "example.com" {
		t.Errorf("target = %q", got)
	}
}

func TestEngine_Cancel(t *testing.T) {
	rec := &commitRecorder{}
	e, slots := newEngine(redirectTemplate(rec))
	e.Start(1, "fw_redirect", nil)
	mustReply(t, e, 1, "web")

	tpl, ok := e.Cancel(1)
	if !ok || tpl.Kind != "fw_redirect" {
		t.Errorf("Cancel() = %v, %v", tpl, ok)
	}
	if _, ok := slots[1]; ok {
		t.Error("state must be destroyed")
	}
	if len(rec.calls) != 0 {
		t.Error("cancel must not commit")
	}

	if _, ok := e.Cancel(1); ok {
		t.Error("second cancel should report nothing active")
	}
}

func TestEngine_NoSession(t *testing.T) {
	e, _ := newEngine(redirectTemplate(&commitRecorder{}))

	if _, err := e.Reply(context.Background(), 1, 1, "x"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Reply error = %v, want ErrNoSession", err)
	}
	if _, err := e.Choose(context.Background(), 1, 1, 0); !errors.Is(err, ErrNoSession) {
		t.Errorf("Choose error = %v, want ErrNoSession", err)
	}
}

func TestEngine_UnknownTemplate(t *testing.T) {
	e, _ := newEngine()
	if _, err := e.Start(1, "missing", nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("error = %v, want ErrUnknownTemplate", err)
	}
}

func TestEngine_CommitFailureDropsState(t *testing.T) {
	rec := &commitRecorder{err: errors.New("ssh: connection refused")}
	e, slots := newEngine(redirectTemplate(rec))
	e.Start(1, "fw_redirect", nil)
	for _, in := range []string{"web", "8080", "192.168.1.50", "80"} {
		mustReply(t, e, 1, in)
	}

	out, _ := e.Choose(context.Background(), 1, 1, 1)
	if out.Status != CommitFailed || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("commit calls = %d, want 1", len(rec.calls))
	}
	if got := out.Record.Get("proto"); got != "udp" {
		t.Errorf("proto = %q", got)
	}
	if _, ok := slots[1]; ok {
		t.Error("state must be destroyed after the commit ran")
	}

	if _, err := e.Choose(context.Background(), 1, 1, 1); !errors.Is(err, ErrNoSession) {
		t.Errorf("second choose err = %v, want ErrNoSession", err)
	}
}

func TestEngine_ParamsReachCommit(t *testing.T) {
	rec := &commitRecorder{}
	tpl := &Template{
		Kind:   "rename",
		Steps:  []Step{{Field: "name", Validate: Name}},
		Commit: rec.commit,
	}
	e, _ := newEngine(tpl)
	e.Start(5, "rename", map[string]string{"section": "cfg0a3"})
	mustReply(t, e, 5, "nas")

	if got := rec.calls[0].Params["section"]; got != "cfg0a3" {
		t.Errorf("section param = %q", got)
	}
	if rec.calls[0].Identity != 5 {
		t.Errorf("Identity = %d", rec.calls[0].Identity)
	}
}

func TestEngine_PanickingValidatorRejects(t *testing.T) {
	tpl := &Template{
		Kind: "boom",
		Steps: []Step{{Field: "x", Validate: func(string) (string, error) {
			panic("bug")
		}}},
		Commit: (&commitRecorder{}).commit,
	}
	e, _ := newEngine(tpl)
	e.Start(1, "boom", nil)

	out := mustReply(t, e, 1, "anything")
	if out.Status != Rejected {
		t.Errorf("status = %v, want Rejected", out.Status)
	}
}
