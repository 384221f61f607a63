package attendance

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"faceattend/internal/blob"
	"faceattend/internal/campus"
	"faceattend/internal/faces"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// sameBytesBackend matches identical images and rejects everything else.
type sameBytesBackend struct{}

func (sameBytesBackend) Verify(_ context.Context, reference, probe []byte) (faces.Comparison, error) {
	if bytes.Equal(reference, probe) {
		return faces.Comparison{Verified: true, Distance: 0.2}, nil
	}
	return faces.Comparison{Verified: false, Distance: 0.7}, nil
}

// stickyStore refuses deletes so the cleanup queue path can be observed.
type stickyStore struct{ *blob.Local }

func (stickyStore) Delete(context.Context, string) error { return errors.New("disk busy") }

type testEnv struct {
	svc      *Service
	repo     *Repository
	recorder *Recorder
	blobs    *blob.Local
	queue    *queue.InMemory
	metrics  *metrics.Metrics
	registry *faces.Registry
	student  *campus.Student
	module   *campus.Module
	session  *campus.Session

	mu  sync.Mutex
	now time.Time
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) setClock(t time.Time) {
	e.mu.Lock()
	e.now = t
	e.mu.Unlock()
}

func photo(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func newTestEnv(t *testing.T, override blob.Store) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewDB(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "attendance.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	local, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	var blobs blob.Store = local
	if override != nil {
		blobs = override
	}

	campusRepo := campus.NewRepository(db.Client)
	cs := campus.NewService(campusRepo)
	lect, err := cs.RegisterLecturer(ctx, campus.LecturerRegistration{Name: "L", Surname: "One", Email: "l.one@dut.ac.za", Faculty: "AI", Password: "pw", ConfirmPassword: "pw"})
	if err != nil {
		t.Fatalf("RegisterLecturer: %v", err)
	}
	st, err := cs.RegisterStudent(ctx, campus.StudentRegistration{Name: "S", Surname: "One", Email: "21000001@dut4life.ac.za", Course: "ICT", Faculty: "AI", Password: "pw", ConfirmPassword: "pw"})
	if err != nil {
		t.Fatalf("RegisterStudent: %v", err)
	}
	mod, err := cs.CreateModule(ctx, lect.ID, campus.CreateModuleRequest{Name: "Programming", Code: "PRG1", Faculty: "AI"})
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	if _, err := cs.EnrollStudent(ctx, lect.ID, mod.ID, st.Email); err != nil {
		t.Fatalf("EnrollStudent: %v", err)
	}
	sess, err := cs.CreateSession(ctx, lect.ID, campus.CreateSessionRequest{
		ModuleID: mod.ID,
		Date:     campus.Date{Year: 2026, Month: time.October, Day: 19},
		Start:    campus.Clock(9, 0, 0),
		End:      campus.Clock(9, 30, 0),
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	e := &testEnv{
		repo:    NewRepository(db.Client),
		blobs:   local,
		queue:   queue.NewInMemory(8),
		metrics: metrics.New(prometheus.NewRegistry()),
		student: st,
		module:  mod,
		session: sess,
		now:     at(19, 9, 15, 0, 0),
	}
	e.registry = faces.NewRegistry(campusRepo, blobs, 256, 0)
	matcher := faces.NewMatcher(campusRepo, blobs, sameBytesBackend{}, time.Second)
	e.recorder = NewRecorder(e.repo, NewLocalLocker(), time.Second)
	e.recorder.now = e.clock
	e.svc = NewService(Options{
		Gate:              NewGate(e.registry, campusRepo, e.repo, sast),
		Matcher:           matcher,
		Recorder:          e.recorder,
		Blobs:             blobs,
		Queue:             e.queue,
		Metrics:           e.metrics,
		ImageMaxDimension: 256,
		Now:               e.clock,
	})
	return e
}

func (e *testEnv) register(t *testing.T, img []byte) {
	t.Helper()
	if _, err := e.registry.RegisterFace(context.Background(), e.student.ID, "me.png", img); err != nil {
		t.Fatalf("RegisterFace: %v", err)
	}
}

func (e *testEnv) submit(t *testing.T, filename string, img []byte) AttemptResult {
	t.Helper()
	res, err := e.svc.Submit(context.Background(), SubmitRequest{
		StudentID: e.student.ID,
		ModuleID:  e.module.ID,
		SessionID: e.session.ID,
		Filename:  filename,
		Image:     img,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return res
}

func (e *testEnv) probes(t *testing.T) []blob.Object {
	t.Helper()
	objs, err := e.blobs.List(context.Background(), faces.ProbePrefix)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return objs
}

func (e *testEnv) rows(t *testing.T) []Record {
	t.Helper()
	recs, err := e.repo.BySession(context.Background(), e.session.ID)
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	return recs
}

func TestSubmitMatchingPhotoMarksAttendance(t *testing.T) {
	e := newTestEnv(t, nil)
	face := photo(t, color.RGBA{200, 150, 120, 255})
	e.register(t, face)

	elig, err := e.svc.CheckEligibility(context.Background(), EligibilityRequest{StudentID: e.student.ID, ModuleID: e.module.ID, SessionID: e.session.ID})
	if err != nil || !elig.Eligible {
		t.Fatalf("CheckEligibility = %+v, %v", elig, err)
	}

	res := e.submit(t, "capture.JPG", face)
	if !res.Success || res.Message != "Attendance marked successfully!" {
		t.Fatalf("result = %+v", res)
	}
	if res.Detail != "Distance: 0.2000" || res.Outcome != "verified" {
		t.Fatalf("detail/outcome = %q/%q", res.Detail, res.Outcome)
	}
	recs := e.rows(t)
	if len(recs) != 1 || recs[0].Status != campus.StatusPresent || recs[0].StudentID != e.student.ID {
		t.Fatalf("records = %+v", recs)
	}
	if !recs[0].AttendanceTime.Equal(at(19, 9, 15, 0, 0)) {
		t.Fatalf("attendance time = %s", recs[0].AttendanceTime)
	}
	if p := e.probes(t); len(p) != 0 {
		t.Fatalf("probe retained after success: %+v", p)
	}
	if got := testutil.ToFloat64(e.metrics.Attempts.WithLabelValues("marked")); got != 1 {
		t.Fatalf("marked attempts = %v", got)
	}

	// one minute later the gate refuses a second mark
	e.setClock(at(19, 9, 16, 0, 0))
	elig, _ = e.svc.CheckEligibility(context.Background(), EligibilityRequest{StudentID: e.student.ID, ModuleID: e.module.ID, SessionID: e.session.ID})
	if elig.Reason != ReasonAlreadyMarked {
		t.Fatalf("second eligibility = %+v", elig)
	}
	res = e.submit(t, "capture.jpg", face)
	if res.Success || res.Reason != ReasonAlreadyMarked || res.Message != "Attendance already marked for this session!" {
		t.Fatalf("second submit = %+v", res)
	}
	if len(e.rows(t)) != 1 {
		t.Fatalf("second submit created a row")
	}
}

func TestSubmitNonMatchingPhotoLeavesNoTrace(t *testing.T) {
	e := newTestEnv(t, nil)
	e.register(t, photo(t, color.RGBA{200, 150, 120, 255}))

	res := e.submit(t, "capture.png", photo(t, color.RGBA{10, 20, 30, 255}))
	if res.Success || !strings.Contains(res.Message, "Face verification failed") {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != "Face verification failed. Please try again. (Error: Distance: 0.7000)" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.Outcome != "not_verified" {
		t.Fatalf("outcome = %q", res.Outcome)
	}
	if len(e.rows(t)) != 0 {
		t.Fatalf("non-match created a record")
	}
	if p := e.probes(t); len(p) != 0 {
		t.Fatalf("probe retained after failure: %+v", p)
	}
}

func TestSubmitDeclinesBeforeStoringProbe(t *testing.T) {
	e := newTestEnv(t, nil)
	face := photo(t, color.White)

	res := e.submit(t, "capture.png", face)
	if res.Reason != ReasonFaceNotRegistered || res.Message != "Please register your face image for attendance marking." {
		t.Fatalf("unregistered = %+v", res)
	}

	e.register(t, face)
	if res := e.submit(t, "capture.gif", face); res.Message != "Invalid file format" || res.Success {
		t.Fatalf("gif = %+v", res)
	}
	if res := e.submit(t, "capture.png", []byte("not an image")); res.Message != "Invalid file format" {
		t.Fatalf("garbage = %+v", res)
	}

	e.setClock(at(19, 9, 31, 0, 0))
	if res := e.submit(t, "capture.png", face); res.Reason != ReasonOutsideWindow {
		t.Fatalf("late = %+v", res)
	}
	e.setClock(at(20, 9, 15, 0, 0))
	if res := e.submit(t, "capture.png", face); res.Reason != ReasonWrongDate {
		t.Fatalf("next day = %+v", res)
	}
	if p := e.probes(t); len(p) != 0 {
		t.Fatalf("declined attempts stored probes: %+v", p)
	}
	if len(e.rows(t)) != 0 {
		t.Fatalf("declined attempts created records")
	}
}

func TestSubmitQueuesCleanupWhenDeleteFails(t *testing.T) {
	local, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	e := newTestEnv(t, stickyStore{local})
	e.blobs = local
	face := photo(t, color.Black)
	e.register(t, face)

	res := e.submit(t, "capture.png", face)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ch, _ := e.queue.Consume(ctx)
	select {
	case msg := <-ch:
		if msg.Type != queue.TypeProbeDelete || !strings.HasPrefix(string(msg.Body), faces.ProbePrefix) {
			t.Fatalf("message = %+v", msg)
		}
		if ok, _ := local.Exists(ctx, string(msg.Body)); !ok {
			t.Fatalf("queued probe %s does not exist", msg.Body)
		}
	case <-ctx.Done():
		t.Fatalf("no cleanup message published")
	}
	if got := testutil.ToFloat64(e.metrics.ProbeCleanups.WithLabelValues("deferred")); got != 1 {
		t.Fatalf("deferred cleanups = %v", got)
	}
}

// noLock lets every caller through so only the storage constraint guards the pair.
type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

func TestConcurrentRecordPersistsOneRow(t *testing.T) {
	for _, tc := range []struct {
		name   string
		locker Locker
	}{
		{"pair lock", NewLocalLocker()},
		{"unique constraint only", noLock{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t, nil)
			rec := NewRecorder(e.repo, tc.locker, time.Second)
			var wg sync.WaitGroup
			var mu sync.Mutex
			ok, conflicts := 0, 0
			for i := 0; i < 12; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := rec.Record(context.Background(), e.student.ID, e.module.ID, e.session.ID)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, ErrAlreadyMarked):
						conflicts++
					default:
						t.Errorf("Record: %v", err)
					}
				}()
			}
			wg.Wait()
			if ok != 1 || conflicts != 11 {
				t.Fatalf("ok=%d conflicts=%d, want 1/11", ok, conflicts)
			}
			if n := len(e.rows(t)); n != 1 {
				t.Fatalf("rows = %d, want 1", n)
			}
		})
	}
}

func TestConcurrentSubmitsMarkOnce(t *testing.T) {
	e := newTestEnv(t, nil)
	face := photo(t, color.RGBA{1, 2, 3, 255})
	e.register(t, face)

	var wg sync.WaitGroup
	results := make([]AttemptResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.svc.Submit(context.Background(), SubmitRequest{
				StudentID: e.student.ID, ModuleID: e.module.ID, SessionID: e.session.ID,
				Filename: "c.png", Image: face,
			})
			if err != nil {
				t.Errorf("Submit: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()
	success := 0
	for _, r := range results {
		if r.Success {
			success++
		} else if r.Reason != ReasonAlreadyMarked {
			t.Fatalf("unexpected result %+v", r)
		}
	}
	if success != 1 || len(e.rows(t)) != 1 {
		t.Fatalf("success=%d rows=%d, want 1/1", success, len(e.rows(t)))
	}
	if p := e.probes(t); len(p) != 0 {
		t.Fatalf("probes retained: %+v", p)
	}
}
