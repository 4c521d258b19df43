package editor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/ezpage/action"
)

func TestStream_AppliesAsEnvelopesComplete(t *testing.T) {
	ed := newMemEditor(t, newMemPersistence())
	ctx := context.Background()
	s, _ := ed.Open(ctx, "home")
	st := s.NewStream(ctx)

	chunks := []string{
		`Sure. <ezAction type="add" nod`,
		`eId="ROOT">{"component":"Hero",`,
		`"props":{"title":"Hi"}}</ezAction> and `,
		`<ezAction type="update" nodeId="n1">{"props":{"title":"Hello"}}</ezAction>`,
	}
	wantApplied := []int{0, 0, 1, 1}
	for i, c := range chunks {
		n, err := st.Feed(c)
		if err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
		if n != wantApplied[i] {
			t.Errorf("feed %d applied %d, want %d", i, n, wantApplied[i])
		}
	}

	hero, err := s.Document().Node("n1")
	if err != nil {
		t.Fatalf("hero: %v", err)
	}
	if title, _ := hero.Props.String("title"); title != "Hello" {
		t.Errorf("title = %q", title)
	}
	r := st.Report()
	if r.Applied != 2 || r.Text != "Sure.  and" {
		t.Errorf("report = %+v", r)
	}
}

func TestStream_StopsAfterFailure(t *testing.T) {
	ed := newMemEditor(t, newMemPersistence())
	ctx := context.Background()
	s, _ := ed.Open(ctx, "home")
	st := s.NewStream(ctx)

	if _, err := st.Feed(`<ezAction type="move" nodeId="ROOT">{"newParentId":"ROOT"}</ezAction>`); err == nil {
		t.Fatal("moving ROOT should fail")
	}
	n, err := st.Feed(heroEnvelope)
	if err == nil || n != 0 {
		t.Errorf("feed after failure = %d, %v", n, err)
	}
	var ee *action.ExecError
	if !errors.As(st.Err(), &ee) || ee.Index != 0 {
		t.Errorf("err = %v, want ExecError at index 0", st.Err())
	}
	if s.Document().Count() != 1 {
		t.Error("nothing after the failure may apply")
	}
}

func TestStream_Abort(t *testing.T) {
	ed := newMemEditor(t, newMemPersistence())
	ctx := context.Background()
	s, _ := ed.Open(ctx, "home")
	st := s.NewStream(ctx)

	if _, err := st.Feed(heroEnvelope); err != nil {
		t.Fatal(err)
	}
	st.Abort()
	if _, err := st.Feed(heroEnvelope); !errors.Is(err, ErrStreamAborted) {
		t.Errorf("err = %v, want ErrStreamAborted", err)
	}
	r := st.Report()
	if !r.Aborted || r.Applied != 1 {
		t.Errorf("report = %+v", r)
	}
	if s.Document().Count() != 2 {
		t.Error("applied actions must stay after abort")
	}
}

func TestStream_BufferLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Stream.MaxBytes = 64
	ed, err := New(cfg, discardLogger(), WithPersistence(newMemPersistence()))
	if err != nil {
		t.Fatal(err)
	}
	defer ed.Close()
	ctx := context.Background()
	s, _ := ed.Open(ctx, "home")

	_, err = s.ApplyStream(ctx, strings.NewReader(`<ezAction type="add" nodeId="ROOT">`+strings.Repeat("x", 200)))
	if !errors.Is(err, action.ErrBufferFull) {
		t.Errorf("err = %v, want ErrBufferFull", err)
	}
}

// blockingReader returns data once, then blocks until ctx is done.
type blockingReader struct {
	ctx  context.Context
	data string
}

func (b *blockingReader) Read(p []byte) (int, error) {
	if b.data != "" {
		n := copy(p, b.data)
		b.data = b.data[n:]
		return n, nil
	}
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func TestApplyStream_Cancellation(t *testing.T) {
	ed := newMemEditor(t, newMemPersistence())
	s, _ := ed.Open(context.Background(), "home")

	ctx, cancel := context.WithCancel(context.Background())
	r := &blockingReader{ctx: ctx, data: heroEnvelope}
	done := make(chan *ApplyReport)
	go func() {
		report, _ := s.ApplyStream(ctx, r)
		done <- report
	}()

	waitFor(t, func() bool { return s.Document().Count() == 2 })
	cancel()
	report := <-done
	if !report.Aborted || report.Applied != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestApplyStream_ChunkedReader(t *testing.T) {
	cfg := testConfig()
	cfg.Stream.ChunkSize = 7
	ed, err := New(cfg, discardLogger(), WithPersistence(newMemPersistence()))
	if err != nil {
		t.Fatal(err)
	}
	defer ed.Close()
	ctx := context.Background()
	s, _ := ed.Open(ctx, "home")

	body := strings.Repeat(`<ezAction type="add" nodeId="ROOT">{"component":"Text"}</ezAction>`, 3)
	report, err := s.ApplyStream(ctx, strings.NewReader(body))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Applied != 3 || s.Document().Count() != 4 {
		t.Errorf("report = %+v", report)
	}
}
