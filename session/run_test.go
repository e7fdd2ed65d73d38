package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/compick/ancestry"
	"github.com/hazyhaar/compick/bridge"
	"github.com/hazyhaar/compick/clipboard"
	"github.com/hazyhaar/compick/page"
	"github.com/hazyhaar/compick/page/sandbox"
	"github.com/hazyhaar/compick/report"
)

const vueGrid = `
const app = { type: { name: "App" }, parent: null };
const list = { type: { __file: "src/components/ButtonRow.vue" }, parent: app };
document.getElementById("root").__vueParentComponent = list;
`

func TestRun_HoverThenPickThroughBroker(t *testing.T) {
	doc, err := sandbox.Load(gridHTML(), vueGrid)
	if err != nil {
		t.Fatalf("sandbox.Load: %v", err)
	}
	broker := bridge.NewBroker(doc, ancestry.NewResolver(), nil, quietLogger())
	pipe := bridge.NewPipe(broker.Handle, 4)
	defer pipe.Close()

	tips := make(chan tooltip, 1)
	outcomes := make(chan report.Outcome, 1)
	clip := &clipboard.Memory{}
	pres := &fakePresenter{onTooltip: func(tt tooltip) { tips <- tt }}

	c := New(Config{
		DOM:       doc,
		Presenter: pres,
		Input:     &fakeInput{},
		Transport: pipe,
		Clipboard: clip,
		Sink: report.Callback(func(_ context.Context, o report.Outcome) error {
			outcomes <- o
			return nil
		}),
		Debounce: 5 * time.Millisecond,
		Logger:   quietLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	btn := doc.QuerySelector("#e3")
	c.Start()
	c.Move(btn)

	select {
	case tt := <-tips:
		if tt.framework != "vue" || len(tt.components) != 2 || tt.components[1] != "ButtonRow" {
			t.Fatalf("tooltip: got %+v", tt)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the hover tooltip")
	}

	c.Click(btn)
	select {
	case o := <-outcomes:
		if !o.OK() || o.Path != "App > ButtonRow" {
			t.Fatalf("outcome: got %+v", o)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the pick outcome")
	}
	if clip.Text != "App > ButtonRow" {
		t.Fatalf("clipboard: got %q", clip.Text)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: got %v, want context.Canceled", err)
	}
	if v := doc.QuerySelector("[" + bridge.PickMarker + "]"); !page.Nil(v) {
		t.Fatal("pick marker left on the page after Run returned")
	}
}
