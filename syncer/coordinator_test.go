package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GrainArc/MapEdit/apiclient"
	"github.com/GrainArc/MapEdit/editor"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = &apiclient.NetworkError{Op: "test", StatusCode: 500, Err: errors.New("boom")}

// fakeAPI 内存中的要素服务
type fakeAPI struct {
	mu      sync.Mutex
	recs    []apiclient.Record
	nextID  int64
	echoID  bool
	failOn  map[string]bool
	calls   []string
	saved   []apiclient.Record
	updated []apiclient.Record

	// 非空时 GetAll 阻塞直到收到信号
	gate chan struct{}
}

func newFakeAPI(recs ...apiclient.Record) *fakeAPI {
	f := &fakeAPI{recs: recs, nextID: 100, echoID: true, failOn: map[string]bool{}}
	return f
}

func (f *fakeAPI) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failOn[name] {
		return errBackend
	}
	return nil
}

func (f *fakeAPI) GetAll(ctx context.Context) ([]apiclient.Record, error) {
	if err := f.call("getAll"); err != nil {
		return nil, err
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiclient.Record(nil), f.recs...), nil
}

func (f *fakeAPI) Save(ctx context.Context, wkt, name string) (apiclient.Record, error) {
	if err := f.call("save"); err != nil {
		return apiclient.Record{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := apiclient.Record{ID: f.nextID, WKT: wkt, Name: name}
	f.nextID++
	f.recs = append(f.recs, rec)
	f.saved = append(f.saved, apiclient.Record{WKT: wkt, Name: name})
	if !f.echoID {
		return apiclient.Record{}, nil
	}
	return rec, nil
}

func (f *fakeAPI) Update(ctx context.Context, rec apiclient.Record) (apiclient.Record, error) {
	if err := f.call("update"); err != nil {
		return apiclient.Record{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, rec)
	for i := range f.recs {
		if f.recs[i].ID == rec.ID {
			f.recs[i] = rec
		}
	}
	return rec, nil
}

func (f *fakeAPI) Delete(ctx context.Context, id int64) error {
	if err := f.call("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.recs {
		if f.recs[i].ID == id {
			f.recs = append(f.recs[:i], f.recs[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type toast struct {
	ok  bool
	msg string
	err error
}

type fakeNotifier struct {
	mu     sync.Mutex
	toasts []toast
}

func (n *fakeNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, toast{ok: true, msg: msg})
}

func (n *fakeNotifier) Error(msg string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, toast{msg: msg, err: err})
}

func (n *fakeNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, t := range n.toasts {
		out = append(out, t.msg)
	}
	return out
}

func setup(recs ...apiclient.Record) (*Coordinator, *fakeAPI, *fakeNotifier) {
	api := newFakeAPI(recs...)
	n := &fakeNotifier{}
	return New(api, editor.NewCollection(), Inline, n), api, n
}

func wait(t *testing.T, op *Op) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := op.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func TestLoadPopulatesCollection(t *testing.T) {
	c, _, _ := setup(apiclient.Record{ID: 1, WKT: "POINT (35 39)", Name: "A"})

	require.NoError(t, wait(t, c.Load(context.Background())))

	fs := c.Collection().Features()
	require.Len(t, fs, 1)
	f := fs[0]
	assert.Equal(t, int64(1), f.ID)
	assert.Equal(t, "A", f.Name)
	assert.Equal(t, editor.PinStyle, f.Style)
	wkt, err := f.WKT()
	require.NoError(t, err)
	assert.Equal(t, "POINT(35 39)", wkt)
}

func TestLoadSkipsUndecodableRecords(t *testing.T) {
	c, _, _ := setup(
		apiclient.Record{ID: 1, WKT: "LINESTRING (0 0, 1 1)", Name: "line"},
		apiclient.Record{ID: 2, WKT: "POINT (1 1)", Name: "ok"},
	)
	require.NoError(t, wait(t, c.Load(context.Background())))
	assert.Equal(t, 1, c.Collection().Len())
	assert.NotNil(t, c.Collection().FindByID(2))
}

func TestLoadFailureKeepsCollection(t *testing.T) {
	c, api, n := setup()
	existing := editor.NewFeature(orb.Point{0, 0})
	c.Collection().Add(existing)
	api.failOn["getAll"] = true

	err := wait(t, c.Load(context.Background()))
	require.Error(t, err)
	assert.Equal(t, []*editor.Feature{existing}, c.Collection().Features())
	assert.Equal(t, []string{MsgLoadFailed}, n.Messages())
}

func drawnPolygon() *editor.Feature {
	g, err := editor.FeatureFromWKT(0, "", "POLYGON ((35 39, 36 39, 36 40, 35 40, 35 39))")
	if err != nil {
		panic(err)
	}
	return editor.NewFeature(g.Geometry)
}

func TestCreateAssignsIDAndReloads(t *testing.T) {
	c, api, n := setup(apiclient.Record{ID: 1, WKT: "POINT (35 39)", Name: "A"})
	require.NoError(t, wait(t, c.Load(context.Background())))

	f := drawnPolygon()
	c.Collection().Add(f)
	require.NoError(t, wait(t, c.Create(context.Background(), f, "Zone1")))

	assert.Equal(t, int64(100), f.ID)
	require.Len(t, api.saved, 1)
	assert.Equal(t, "Zone1", api.saved[0].Name)
	assert.Contains(t, api.saved[0].WKT, "POLYGON((35 39")
	assert.Equal(t, []string{MsgSaved}, n.Messages())

	got := c.Collection().FindByID(100)
	require.NotNil(t, got)
	assert.Equal(t, "Zone1", got.Name)
	assert.Equal(t, 2, c.Collection().Len())
}

func TestCreateAdoptsIDWhenNotEchoed(t *testing.T) {
	c, api, _ := setup(apiclient.Record{ID: 1, WKT: "POINT (35 39)", Name: "Zone1"})
	require.NoError(t, wait(t, c.Load(context.Background())))
	api.echoID = false

	f := drawnPolygon()
	require.NoError(t, wait(t, c.Create(context.Background(), f, "Zone1")))
	// 已存在的同名要素 1 不会被误认
	assert.Equal(t, int64(100), f.ID)
}

func TestCreateFailureLeavesFeatureUnpersisted(t *testing.T) {
	c, api, n := setup(apiclient.Record{ID: 1, WKT: "POINT (35 39)", Name: "A"})
	require.NoError(t, wait(t, c.Load(context.Background())))
	f := drawnPolygon()
	c.Collection().Add(f)
	before := c.Collection().Features()
	api.failOn["save"] = true

	err := wait(t, c.Create(context.Background(), f, "Zone1"))

	var ne *apiclient.NetworkError
	require.True(t, errors.As(err, &ne))
	assert.False(t, f.HasID())
	assert.Equal(t, before, c.Collection().Features())
	assert.Equal(t, []string{MsgSaveFailed}, n.Messages())
	assert.Equal(t, []string{"getAll", "save"}, api.Calls())
}

func TestUpdateRequiresIdentity(t *testing.T) {
	c, api, n := setup()
	f := drawnPolygon()

	err := wait(t, c.Update(context.Background(), f, Reconcile))
	assert.ErrorIs(t, err, editor.ErrIdentityMissing)
	err = wait(t, c.UpdateRecord(context.Background(), 0, "POINT (1 1)", "x", FullReload))
	assert.ErrorIs(t, err, editor.ErrIdentityMissing)
	err = wait(t, c.Delete(context.Background(), 0))
	assert.ErrorIs(t, err, editor.ErrIdentityMissing)

	assert.Empty(t, api.Calls())
	assert.Equal(t, []string{MsgUpdateFailed, MsgUpdateFailed, MsgDeleteFailed}, n.Messages())
}

func TestUpdateReconcileByID(t *testing.T) {
	c, api, n := setup(
		apiclient.Record{ID: 1, WKT: "POINT (35 39)", Name: "same"},
		apiclient.Record{ID: 2, WKT: "POINT (10 10)", Name: "same"},
	)
	require.NoError(t, wait(t, c.Load(context.Background())))
	f := c.Collection().FindByID(2)
	key := f.Key
	f.Translate(1000, 0)

	require.NoError(t, wait(t, c.Update(context.Background(), f, Reconcile)))

	require.Len(t, api.updated, 1)
	assert.Equal(t, int64(2), api.updated[0].ID)
	assert.Equal(t, []string{"getAll", "update"}, api.Calls())
	assert.Equal(t, []string{MsgUpdated}, n.Messages())

	// 同名的要素 1 不受影响
	assert.Equal(t, 2, c.Collection().Len())
	assert.Equal(t, "POINT(35 39)", mustWKT(t, c.Collection().FindByID(1)))
	got := c.Collection().FindByID(2)
	assert.Equal(t, key, got.Key)
	assert.Equal(t, api.updated[0].WKT, mustWKT(t, got))
}

func TestUpdateFullReload(t *testing.T) {
	c, api, _ := setup(apiclient.Record{ID: 1, WKT: "POINT (35 39)", Name: "A"})
	require.NoError(t, wait(t, c.Load(context.Background())))

	require.NoError(t, wait(t, c.UpdateRecord(context.Background(), 1, "POINT (1 2)", "B", FullReload)))
	assert.Equal(t, []string{"getAll", "update", "getAll"}, api.Calls())
	got := c.Collection().FindByID(1)
	require.NotNil(t, got)
	assert.Equal(t, "B", got.Name)
	assert.Equal(t, "POINT(1 2)", mustWKT(t, got))
}

func TestUpdateFailureKeepsLocalState(t *testing.T) {
	c, api, n := setup(apiclient.Record{ID: 1, WKT: "POINT (35 39)", Name: "A"})
	require.NoError(t, wait(t, c.Load(context.Background())))
	f := c.Collection().FindByID(1)
	f.Translate(500, 500)
	moved := f.Geometry
	api.failOn["update"] = true

	require.Error(t, wait(t, c.Update(context.Background(), f, Reconcile)))
	assert.Same(t, f, c.Collection().FindByID(1))
	assert.Equal(t, moved, f.Geometry)
	assert.Equal(t, []string{MsgUpdateFailed}, n.Messages())
}

func TestDeleteReloads(t *testing.T) {
	c, api, n := setup(
		apiclient.Record{ID: 5, WKT: "POINT (35 39)", Name: "A"},
		apiclient.Record{ID: 6, WKT: "POINT (36 39)", Name: "B"},
	)
	require.NoError(t, wait(t, c.Load(context.Background())))

	require.NoError(t, wait(t, c.Delete(context.Background(), 5)))
	assert.Nil(t, c.Collection().FindByID(5))
	assert.NotNil(t, c.Collection().FindByID(6))
	assert.Equal(t, []string{"getAll", "delete", "getAll"}, api.Calls())
	assert.Equal(t, []string{MsgDeleted}, n.Messages())
}

func TestDeleteFailureRemovesNothing(t *testing.T) {
	c, api, n := setup(apiclient.Record{ID: 5, WKT: "POINT (35 39)", Name: "A"})
	require.NoError(t, wait(t, c.Load(context.Background())))
	api.failOn["delete"] = true

	require.Error(t, wait(t, c.Delete(context.Background(), 5)))
	assert.NotNil(t, c.Collection().FindByID(5))
	assert.Equal(t, []string{MsgDeleteFailed}, n.Messages())
}

// 重载与本地拖拽交错时，后执行的完成处理覆盖先执行的
func TestReloadRacesLocalDragLastWriteWins(t *testing.T) {
	api := newFakeAPI(apiclient.Record{ID: 1, WKT: "POINT (35 39)", Name: "A"})
	n := &fakeNotifier{}
	loop := editor.NewLoop(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	col := editor.NewCollection()
	c := New(api, col, loop, n)
	require.NoError(t, wait(t, c.Load(ctx)))
	serverWKT := mustWKT(t, col.FindByID(1))

	api.gate = make(chan struct{})
	reload := c.Load(ctx)

	// 重载挂起期间拖动要素
	im := editor.NewInteractionManager(col, 10)
	require.NoError(t, loop.Call(ctx, func() {
		im.ArmDrag()
		at := col.FindByID(1).Geometry.(orb.Point)
		im.PointerDown(at)
		im.PointerMove(orb.Point{at[0] + 10000, at[1]})
		im.PointerUp(orb.Point{at[0] + 10000, at[1]})
	}))
	var moved *editor.Feature
	require.NoError(t, loop.Call(ctx, func() { moved = col.FindByID(1) }))
	assert.NotEqual(t, serverWKT, mustWKT(t, moved))

	close(api.gate)
	require.NoError(t, wait(t, reload))

	var after *editor.Feature
	require.NoError(t, loop.Call(ctx, func() { after = col.FindByID(1) }))
	assert.NotSame(t, moved, after)
	assert.Equal(t, serverWKT, mustWKT(t, after), "reload completed last and overwrote the local drag")
}

func TestWatchReloadsOnEvents(t *testing.T) {
	c, api, _ := setup(apiclient.Record{ID: 1, WKT: "POINT (35 39)", Name: "A"})
	feed := make(chan apiclient.Event)
	op := c.Watch(context.Background(), feed)

	feed <- apiclient.Event{Type: apiclient.EventCreated, ID: 1}
	feed <- apiclient.Event{Type: apiclient.EventUpdated, ID: 1}
	close(feed)
	require.NoError(t, wait(t, op))

	assert.Equal(t, []string{"getAll", "getAll"}, api.Calls())
	assert.Equal(t, 1, c.Collection().Len())
}

func TestOpErrBeforeDone(t *testing.T) {
	op := newOp()
	assert.NoError(t, op.Err())
	op.finish(errBackend)
	op.finish(nil)
	assert.Equal(t, errBackend, op.Err())
	<-op.Done()
}

func mustWKT(t *testing.T, f *editor.Feature) string {
	t.Helper()
	require.NotNil(t, f)
	s, err := f.WKT()
	require.NoError(t, err)
	return s
}

func TestThenKeepsFirstError(t *testing.T) {
	first := newOp()
	ran := make(chan struct{})
	op := Then(first, func() *Op {
		close(ran)
		next := newOp()
		next.finish(nil)
		return next
	})
	first.finish(errBackend)
	<-ran
	assert.Equal(t, errBackend, wait(t, op))
}
