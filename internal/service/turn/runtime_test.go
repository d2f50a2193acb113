package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"cadence/internal/domain"
	"cadence/internal/domain/models"
	"cadence/internal/domain/repositories"
	"cadence/internal/service/generation"
	"cadence/internal/service/history"
	"cadence/internal/service/patch"
)

type fakeProvider struct {
	generateFull func(ctx context.Context, req *generation.Request, onDelta generation.DeltaFunc) (*generation.FullResult, error)
	decide       func(ctx context.Context, req *generation.Request) (*generation.Decision, error)

	requests []*generation.Request
}

func (p *fakeProvider) GenerateFull(ctx context.Context, req *generation.Request, onDelta generation.DeltaFunc) (*generation.FullResult, error) {
	p.requests = append(p.requests, req)
	return p.generateFull(ctx, req, onDelta)
}

func (p *fakeProvider) Decide(ctx context.Context, req *generation.Request) (*generation.Decision, error) {
	p.requests = append(p.requests, req)
	return p.decide(ctx, req)
}

type memSnapshotRepo struct {
	snapshots []models.Snapshot
	nextID    int
}

func (r *memSnapshotRepo) ListBySession(_ context.Context, sessionID string) ([]models.Snapshot, error) {
	out := []models.Snapshot{}
	for _, s := range r.snapshots {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSnapshotRepo) Insert(_ context.Context, snapshot *models.Snapshot) error {
	r.nextID++
	snapshot.ID = fmt.Sprintf("snap-%d", r.nextID)
	r.snapshots = append(r.snapshots, *snapshot)
	return nil
}

func (r *memSnapshotRepo) DeleteByIDs(_ context.Context, sessionID string, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.snapshots[:0]
	for _, s := range r.snapshots {
		if s.SessionID == sessionID && drop[s.ID] {
			continue
		}
		kept = append(kept, s)
	}
	r.snapshots = kept
	return nil
}

func (r *memSnapshotRepo) DeleteBySession(_ context.Context, sessionID string) error {
	kept := r.snapshots[:0]
	for _, s := range r.snapshots {
		if s.SessionID != sessionID {
			kept = append(kept, s)
		}
	}
	r.snapshots = kept
	return nil
}

type passthroughTx struct{}

func (passthroughTx) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type stubSessionRepo struct {
	touched []string
}

func (r *stubSessionRepo) Create(context.Context, *models.Session) error { return nil }
func (r *stubSessionRepo) Get(context.Context, string, string) (*models.Session, error) {
	return nil, domain.ErrNotFound
}
func (r *stubSessionRepo) List(context.Context, string) ([]models.Session, error) {
	return []models.Session{}, nil
}
func (r *stubSessionRepo) Update(context.Context, *models.Session) error { return nil }
func (r *stubSessionRepo) Delete(context.Context, string, string) (*models.Session, error) {
	return nil, domain.ErrNotFound
}
func (r *stubSessionRepo) Touch(_ context.Context, sessionID string) error {
	r.touched = append(r.touched, sessionID)
	return nil
}

func newTestRuntime(t *testing.T, provider *fakeProvider) *Runtime {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := history.NewStore(&memSnapshotRepo{}, passthroughTx{}, logger, "session-1")
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	session := &models.Session{ID: "session-1", UserID: "user-1", Title: "test", Aspect: "16:9"}
	return newRuntime(session, &stubSessionRepo{}, store, provider, 3, logger)
}

func TestRuntime_FirstTurnStreamsFullGeneration(t *testing.T) {
	provider := &fakeProvider{
		generateFull: func(_ context.Context, _ *generation.Request, onDelta generation.DeltaFunc) (*generation.FullResult, error) {
			for _, d := range []string{"const ", "a = 1;"} {
				if err := onDelta(d); err != nil {
					return nil, err
				}
			}
			return &generation.FullResult{Code: "const a = 1;", Skills: []string{"easing"}, Summary: "a constant"}, nil
		},
	}
	rt := newTestRuntime(t, provider)

	var streamed strings.Builder
	result, err := rt.Submit(context.Background(), "make a constant", nil, func(delta string) error {
		streamed.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if streamed.String() != "const a = 1;" {
		t.Errorf("streamed %q", streamed.String())
	}
	if result.EditType != models.EditTypeFullReplacement {
		t.Errorf("edit type %q", result.EditType)
	}
	if result.Snapshot == nil || result.Snapshot.SequenceNumber != 0 {
		t.Errorf("unexpected snapshot: %+v", result.Snapshot)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts %d, want 1", result.Attempts)
	}

	msgs := rt.Messages()
	if len(msgs) != 2 || msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected transcript: %+v", msgs)
	}
	if msgs[1].Meta == nil || len(msgs[1].Meta.Skills) != 1 {
		t.Errorf("assistant meta missing skills: %+v", msgs[1].Meta)
	}

	if provider.requests[0].IsFollowUp {
		t.Error("first turn must not be a follow-up")
	}
}

func TestRuntime_FollowUpAppliesEditDecision(t *testing.T) {
	provider := &fakeProvider{
		generateFull: func(_ context.Context, _ *generation.Request, _ generation.DeltaFunc) (*generation.FullResult, error) {
			return &generation.FullResult{Code: "color: red;\nsize: 10;"}, nil
		},
		decide: func(_ context.Context, _ *generation.Request) (*generation.Decision, error) {
			return &generation.Decision{
				Kind:    generation.DecisionEdit,
				Edits:   []patch.Edit{{Description: "recolor", OldString: "red", NewString: "blue"}},
				Summary: "made it blue",
			}, nil
		},
	}
	rt := newTestRuntime(t, provider)

	if _, err := rt.Submit(context.Background(), "something red", nil, nil); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	result, err := rt.Submit(context.Background(), "make it blue", nil, nil)
	if err != nil {
		t.Fatalf("follow-up failed: %v", err)
	}

	if result.Code != "color: blue;\nsize: 10;" {
		t.Errorf("unexpected code: %q", result.Code)
	}
	if result.EditType != models.EditTypePatch {
		t.Errorf("edit type %q", result.EditType)
	}
	if len(result.AppliedEdits) != 1 || result.AppliedEdits[0].LineNumber != 1 {
		t.Errorf("unexpected applied edits: %+v", result.AppliedEdits)
	}
	if result.Snapshot.SequenceNumber != 1 {
		t.Errorf("snapshot sequence %d, want 1", result.Snapshot.SequenceNumber)
	}

	last := provider.requests[len(provider.requests)-1]
	if !last.IsFollowUp || last.CurrentCode != "color: red;\nsize: 10;" {
		t.Errorf("follow-up request malformed: %+v", last)
	}
}

func TestRuntime_PatchFailureRetriesWithCorrection(t *testing.T) {
	decideCalls := 0
	provider := &fakeProvider{
		generateFull: func(_ context.Context, _ *generation.Request, _ generation.DeltaFunc) (*generation.FullResult, error) {
			return &generation.FullResult{Code: "x = 1; x = 1;"}, nil
		},
		decide: func(_ context.Context, _ *generation.Request) (*generation.Decision, error) {
			decideCalls++
			if decideCalls == 1 {
				// Matches twice; the patch engine rejects it.
				return &generation.Decision{
					Kind:  generation.DecisionEdit,
					Edits: []patch.Edit{{OldString: "x = 1;", NewString: "x = 2;"}},
				}, nil
			}
			return &generation.Decision{
				Kind:  generation.DecisionEdit,
				Edits: []patch.Edit{{OldString: "x = 1; x = 1;", NewString: "x = 2; x = 1;"}},
			}, nil
		},
	}
	rt := newTestRuntime(t, provider)

	if _, err := rt.Submit(context.Background(), "start", nil, nil); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	result, err := rt.Submit(context.Background(), "bump x", nil, nil)
	if err != nil {
		t.Fatalf("follow-up failed: %v", err)
	}

	if decideCalls != 2 {
		t.Fatalf("decide called %d times, want 2", decideCalls)
	}
	if result.Code != "x = 2; x = 1;" {
		t.Errorf("unexpected code: %q", result.Code)
	}
	if result.Attempts != 2 {
		t.Errorf("attempts %d, want 2", result.Attempts)
	}

	retry := provider.requests[len(provider.requests)-1]
	if retry.Correction == nil {
		t.Fatal("retry request missing correction context")
	}
	if retry.Correction.Attempt != 2 || retry.Correction.MaxAttempts != 3 {
		t.Errorf("correction counters: %+v", retry.Correction)
	}
	if retry.Correction.FailedEdit == nil || retry.Correction.FailedEdit.OldString != "x = 1;" {
		t.Errorf("correction missing failed edit: %+v", retry.Correction.FailedEdit)
	}
}

func TestRuntime_PatchFailureBudgetExhausted(t *testing.T) {
	decideCalls := 0
	provider := &fakeProvider{
		generateFull: func(_ context.Context, _ *generation.Request, _ generation.DeltaFunc) (*generation.FullResult, error) {
			return &generation.FullResult{Code: "stable"}, nil
		},
		decide: func(_ context.Context, _ *generation.Request) (*generation.Decision, error) {
			decideCalls++
			return &generation.Decision{
				Kind:  generation.DecisionEdit,
				Edits: []patch.Edit{{OldString: "missing", NewString: "whatever"}},
			}, nil
		},
	}
	rt := newTestRuntime(t, provider)

	if _, err := rt.Submit(context.Background(), "start", nil, nil); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	_, err := rt.Submit(context.Background(), "impossible change", nil, nil)
	var patchErr *patch.Error
	if !errors.As(err, &patchErr) {
		t.Fatalf("expected patch error, got %v", err)
	}
	if patchErr.Kind != patch.KindNotFound {
		t.Errorf("patch error kind %q", patchErr.Kind)
	}

	// Attempt budget of 3 allows two automatic retries.
	if decideCalls != 3 {
		t.Errorf("decide called %d times, want 3", decideCalls)
	}
	if rt.Code() != "stable" {
		t.Errorf("buffer changed on terminal failure: %q", rt.Code())
	}

	msgs := rt.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleError || last.ErrorKind != models.ErrorKindEditFailed {
		t.Errorf("terminal error not recorded: %+v", last)
	}
	if last.FailedEdit == nil || last.FailedEdit.OldString != "missing" {
		t.Errorf("failed edit not recorded: %+v", last.FailedEdit)
	}
}

func TestRuntime_InvalidResponseNotRetried(t *testing.T) {
	decideCalls := 0
	provider := &fakeProvider{
		generateFull: func(_ context.Context, _ *generation.Request, _ generation.DeltaFunc) (*generation.FullResult, error) {
			return &generation.FullResult{Code: "c"}, nil
		},
		decide: func(_ context.Context, _ *generation.Request) (*generation.Decision, error) {
			decideCalls++
			return nil, generation.ErrInvalidResponse
		},
	}
	rt := newTestRuntime(t, provider)

	if _, err := rt.Submit(context.Background(), "start", nil, nil); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	_, err := rt.Submit(context.Background(), "change", nil, nil)
	if !errors.Is(err, generation.ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if decideCalls != 1 {
		t.Errorf("protocol violations must not be retried; decide called %d times", decideCalls)
	}
}

func TestRuntime_BusyGuard(t *testing.T) {
	rt := newTestRuntime(t, &fakeProvider{})

	if err := rt.acquire(); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	_, err := rt.Submit(context.Background(), "while busy", nil, nil)
	if !errors.Is(err, domain.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	rt.release()
}

func TestRuntime_PromptValidation(t *testing.T) {
	rt := newTestRuntime(t, &fakeProvider{})

	_, err := rt.Submit(context.Background(), "", nil, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty prompt, got %v", err)
	}
}

func TestRuntime_PreviewSuccessResetsCorrector(t *testing.T) {
	rt := newTestRuntime(t, &fakeProvider{})
	rt.corrector.attempt = 3

	result, err := rt.Preview(context.Background(), PreviewReport{OK: true})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if result != nil {
		t.Errorf("success report should return no result, got %+v", result)
	}
	if rt.corrector.Attempt() != 1 {
		t.Errorf("corrector not reset: attempt %d", rt.corrector.Attempt())
	}
}

func TestRuntime_PreviewFailureRunsCorrectiveTurn(t *testing.T) {
	provider := &fakeProvider{
		generateFull: func(_ context.Context, _ *generation.Request, _ generation.DeltaFunc) (*generation.FullResult, error) {
			return &generation.FullResult{Code: "broken()"}, nil
		},
		decide: func(_ context.Context, _ *generation.Request) (*generation.Decision, error) {
			return &generation.Decision{Kind: generation.DecisionFull, Code: "fixed()", Summary: "fixed"}, nil
		},
	}
	rt := newTestRuntime(t, provider)

	atts := []models.Attachment{{URL: "https://example.com/ref.png", MediaType: "image/png"}}
	if _, err := rt.Submit(context.Background(), "start", atts, nil); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	result, err := rt.Preview(context.Background(), PreviewReport{Kind: FailureCompile, Message: "broken is not defined"})
	if err != nil {
		t.Fatalf("corrective turn failed: %v", err)
	}
	if result.Code != "fixed()" {
		t.Errorf("unexpected corrected code: %q", result.Code)
	}

	corrective := provider.requests[len(provider.requests)-1]
	if corrective.Correction == nil || corrective.Correction.Error != "broken is not defined" {
		t.Errorf("correction context missing: %+v", corrective.Correction)
	}
	if corrective.Correction.FailedEdit != nil {
		t.Error("compile failures carry no failed edit")
	}
	if len(corrective.Attachments) != 1 || corrective.Attachments[0].URL != atts[0].URL {
		t.Errorf("last user attachments not resupplied: %+v", corrective.Attachments)
	}
	if !strings.Contains(corrective.Prompt, "broken is not defined") {
		t.Errorf("corrective prompt missing error text: %q", corrective.Prompt)
	}
}

func TestRuntime_PreviewFailureExhaustsBudget(t *testing.T) {
	provider := &fakeProvider{
		generateFull: func(_ context.Context, _ *generation.Request, _ generation.DeltaFunc) (*generation.FullResult, error) {
			return &generation.FullResult{Code: "spin()"}, nil
		},
	}
	rt := newTestRuntime(t, provider)

	if _, err := rt.Submit(context.Background(), "start", nil, nil); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	rt.corrector.attempt = 3

	_, err := rt.Preview(context.Background(), PreviewReport{Kind: FailureRuntime, Message: "NaN frame"})
	if !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}

	msgs := rt.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleError || last.ErrorKind != models.ErrorKindRuntime {
		t.Errorf("terminal runtime error not recorded: %+v", last)
	}
}

func TestRuntime_PreviewFailureWithoutCode(t *testing.T) {
	rt := newTestRuntime(t, &fakeProvider{})

	_, err := rt.Preview(context.Background(), PreviewReport{Kind: FailureCompile, Message: "nothing compiled"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if rt.corrector.Attempt() != 1 {
		t.Errorf("rejected report must not consume the budget: attempt %d", rt.corrector.Attempt())
	}
	if len(rt.Messages()) != 0 {
		t.Errorf("rejected report must not touch the transcript: %+v", rt.Messages())
	}
}

// Read accessors must stay safe while a turn is mid-flight mutating the
// ledger, buffer, and snapshot stack. Run with -race.
func TestRuntime_AccessorsSafeDuringTurn(t *testing.T) {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	provider := &fakeProvider{
		generateFull: func(_ context.Context, _ *generation.Request, _ generation.DeltaFunc) (*generation.FullResult, error) {
			return &generation.FullResult{Code: "v0"}, nil
		},
		decide: func(_ context.Context, _ *generation.Request) (*generation.Decision, error) {
			close(entered)
			<-proceed
			return &generation.Decision{Kind: generation.DecisionFull, Code: "v1"}, nil
		},
	}
	rt := newTestRuntime(t, provider)

	if _, err := rt.Submit(context.Background(), "start", nil, nil); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	submitErr := make(chan error, 1)
	go func() {
		_, err := rt.Submit(context.Background(), "change", nil, nil)
		submitErr <- err
	}()

	<-entered

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					rt.Messages()
					rt.Snapshots()
					rt.Code()
				}
			}
		}()
	}

	close(proceed)
	if err := <-submitErr; err != nil {
		t.Fatalf("follow-up failed: %v", err)
	}
	close(stop)
	readers.Wait()

	if rt.Code() != "v1" {
		t.Errorf("buffer %q after settled turn, want %q", rt.Code(), "v1")
	}
	if snaps := rt.Snapshots(); len(snaps) != 2 {
		t.Errorf("snapshot count %d, want 2", len(snaps))
	}
}

func TestRuntime_UndoRedoAndManualEdits(t *testing.T) {
	counter := 0
	provider := &fakeProvider{
		generateFull: func(_ context.Context, _ *generation.Request, _ generation.DeltaFunc) (*generation.FullResult, error) {
			return &generation.FullResult{Code: "v0"}, nil
		},
		decide: func(_ context.Context, req *generation.Request) (*generation.Decision, error) {
			counter++
			return &generation.Decision{Kind: generation.DecisionFull, Code: fmt.Sprintf("v%d", counter)}, nil
		},
	}
	rt := newTestRuntime(t, provider)

	if _, err := rt.Submit(context.Background(), "v0", nil, nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if _, err := rt.Submit(context.Background(), "v1", nil, nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if err := rt.UpdateCode("hand edited"); err != nil {
		t.Fatalf("UpdateCode failed: %v", err)
	}
	if !rt.ledger.HasManualEdits() {
		t.Fatal("manual edit flag not set")
	}

	res, err := rt.Undo()
	if err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if !res.Moved || res.Code != "v0" {
		t.Errorf("undo result: %+v", res)
	}
	if rt.ledger.HasManualEdits() {
		t.Error("undo should clear the manual edit flag")
	}

	res, err = rt.Undo()
	if err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if res.Moved {
		t.Error("undo at the oldest snapshot should not move")
	}
	if res.Code != "v0" {
		t.Errorf("boundary undo should keep the buffer, got %q", res.Code)
	}

	res, err = rt.Redo()
	if err != nil {
		t.Fatalf("Redo failed: %v", err)
	}
	if !res.Moved || res.Code != "v1" {
		t.Errorf("redo result: %+v", res)
	}
}

func TestCorrector_Budget(t *testing.T) {
	c := NewCorrector(3)

	for want := 2; want <= 3; want++ {
		correction, prompt, ok := c.Next(Failure{Kind: FailureCompile, Message: "boom"})
		if !ok {
			t.Fatalf("attempt %d should be allowed", want)
		}
		if correction.Attempt != want {
			t.Errorf("attempt %d, want %d", correction.Attempt, want)
		}
		if prompt == "" {
			t.Error("corrective prompt is empty")
		}
	}

	if _, _, ok := c.Next(Failure{Kind: FailureCompile, Message: "boom"}); ok {
		t.Error("budget should be exhausted after max attempts")
	}

	c.Reset()
	if c.Attempt() != 1 {
		t.Errorf("reset attempt %d, want 1", c.Attempt())
	}
}
