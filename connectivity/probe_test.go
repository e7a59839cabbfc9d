package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/projecteru2/rf4watch/config"
	"github.com/projecteru2/rf4watch/eventbus"
	"github.com/projecteru2/rf4watch/types"
)

// fakeDialer succeeds for addresses in up and fails the rest.
type fakeDialer struct {
	mu    sync.Mutex
	up    map[string]bool
	block bool
}

func (d *fakeDialer) set(addrs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.up = map[string]bool{}
	for _, a := range addrs {
		d.up[a] = true
	}
}

func (d *fakeDialer) DialContext(ctx context.Context, _, addr string) (net.Conn, error) {
	d.mu.Lock()
	ok, block := d.up[addr], d.block
	d.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, errors.New("i/o timeout")
	}
	c1, c2 := net.Pipe()
	_ = c2.Close()
	return c1, nil
}

func testConf(games ...string) config.ConnectionConfig {
	return config.ConnectionConfig{
		PollIntervalMS: 1000,
		BasicTargets:   []string{"a:80", "b:53", "c:53"},
		GameServers:    games,
		DialTimeoutMS:  200,
		HTTPTimeoutMS:  200,
		HistorySize:    100,
	}
}

func kinds(p *Probe) *[]string {
	var mu sync.Mutex
	var got []string
	p.Subscribe(func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case KindEstablished:
			got = append(got, "established:"+ev.Link)
		case KindLost:
			got = append(got, "lost:"+ev.Reason)
		}
		return nil
	})
	return &got
}

// --- Classification ---

func TestClassify_Bands(t *testing.T) {
	cases := []struct {
		ms   float64
		want types.Quality
	}{
		{30, types.QualityExcellent},
		{80, types.QualityGood},
		{150, types.QualityFair},
		{300, types.QualityPoor},
		{600, types.QualityVeryPoor},
		{50, types.QualityGood},
		{499.9, types.QualityPoor},
	}
	for _, c := range cases {
		if got := Classify(true, c.ms); got != c.want {
			t.Errorf("Classify(%v): expected %s, got %s", c.ms, c.want, got)
		}
	}
	if got := Classify(false, 10); got != types.QualityNoConnection {
		t.Errorf("expected no_connection, got %s", got)
	}
}

func TestClassify_Monotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.Float64Range(0, 5000).Draw(rt, "a")
		b := rapid.Float64Range(0, 5000).Draw(rt, "b")
		if a > b {
			a, b = b, a
		}
		if Rank(Classify(true, a)) < Rank(Classify(true, b)) {
			rt.Fatalf("quality improved with latency: %v -> %s, %v -> %s", a, Classify(true, a), b, Classify(true, b))
		}
	})
}

func TestAssemble(t *testing.T) {
	s := assemble(time.Now(), []result{
		{target: "b", latency: 20 * time.Millisecond},
		{target: "a", err: errors.New("refused")},
		{target: "c", latency: 60 * time.Millisecond},
	}, []result{{target: "game", latency: time.Second}})
	if !s.Connected || s.AvgLatencyMS == nil || *s.AvgLatencyMS != 40 {
		t.Fatalf("unexpected sample %+v", s)
	}
	if s.Quality != types.QualityExcellent {
		t.Errorf("game server latency must not affect quality, got %s", s.Quality)
	}
	if fmt.Sprint(s.ReachableTargets) != "[b c game]" || fmt.Sprint(s.UnreachableTargets) != "[a]" {
		t.Errorf("unexpected target sets %v / %v", s.ReachableTargets, s.UnreachableTargets)
	}
}

// --- Probe ---

func TestAllBasicTargetsDown(t *testing.T) {
	d := &fakeDialer{}
	p := New(testConf(), d, nil)
	p.ForceCheck(context.Background())
	st := p.Status()
	if st.Connected || st.Quality != types.QualityNoConnection {
		t.Errorf("expected disconnected/no_connection, got %+v", st)
	}
	s, ok := p.Latest()
	if !ok || len(s.UnreachableTargets) != 3 {
		t.Errorf("expected 3 unreachable targets, got %+v", s)
	}
}

func TestStatusBeforeFirstCheck(t *testing.T) {
	p := New(testConf(), &fakeDialer{}, nil)
	if st := p.Status(); st.Quality != types.QualityUnknown || st.Connected {
		t.Errorf("unexpected initial status %+v", st)
	}
}

func TestOneBasicTargetIsEnough(t *testing.T) {
	d := &fakeDialer{}
	d.set("c:53")
	p := New(testConf(), d, nil)
	got := kinds(p)
	p.ForceCheck(context.Background())
	if !p.Status().Connected {
		t.Fatal("expected connected with a single reachable target")
	}
	d.set()
	p.ForceCheck(context.Background())
	want := "[established:internet lost:internet_disconnected]"
	if fmt.Sprint(*got) != want {
		t.Errorf("expected %s, got %v", want, *got)
	}
}

func TestGameServerReachability(t *testing.T) {
	var mu sync.Mutex
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
	}))
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	d := &fakeDialer{}
	d.set("a:80")
	p := New(testConf(host), d, nil)
	got := kinds(p)
	p.ForceCheck(context.Background())
	s, _ := p.Latest()
	if fmt.Sprint(s.GameServersReachable) != "["+host+"]" {
		t.Fatalf("expected game server reachable, got %+v", s)
	}

	// 5xx and the TCP fallback (fake dialer) both fail
	mu.Lock()
	status = http.StatusBadGateway
	mu.Unlock()
	p.ForceCheck(context.Background())
	if !p.Status().Connected {
		t.Error("game servers must not affect basic connectivity")
	}
	want := "[established:game_servers lost:game_servers_unreachable]"
	if fmt.Sprint(*got) != want {
		t.Errorf("expected %s, got %v", want, *got)
	}
}

func TestHistoryBounded(t *testing.T) {
	d := &fakeDialer{}
	d.set("a:80")
	conf := testConf()
	conf.HistorySize = 10
	p := New(conf, d, nil)
	for range 25 {
		p.ForceCheck(context.Background())
	}
	h := p.History(60)
	if len(h) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(h))
	}
	for i := 1; i < len(h); i++ {
		if h[i].Timestamp.Before(h[i-1].Timestamp) {
			t.Fatal("history not chronological")
		}
	}
	if p.Status().HistorySize != 10 {
		t.Errorf("expected history size 10, got %d", p.Status().HistorySize)
	}
}

func TestHungTargetBoundedByDeadline(t *testing.T) {
	d := &fakeDialer{block: true}
	p := New(testConf(), d, nil)
	start := time.Now()
	p.ForceCheck(context.Background())
	if time.Since(start) > 2*time.Second {
		t.Errorf("tick took %s with hung targets", time.Since(start))
	}
	if p.Status().Connected {
		t.Error("expected disconnected")
	}
}

func TestStopDiscardsInflightCheck(t *testing.T) {
	d := &fakeDialer{block: true}
	p := New(testConf(), d, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	if len(p.History(0)) != 0 {
		t.Error("sample recorded after stop")
	}
}

func TestPublishesToBus(t *testing.T) {
	bus := eventbus.New(0)
	d := &fakeDialer{}
	d.set("a:80")
	p := New(testConf(), d, bus)
	p.ForceCheck(context.Background())
	if len(bus.History(EventEstablished, 0)) != 1 || len(bus.History(EventChanged, 0)) != 1 {
		t.Errorf("unexpected bus history %+v", bus.History("", 0))
	}
}

func TestSetPollIntervalClamped(t *testing.T) {
	p := New(testConf(), &fakeDialer{}, nil)
	p.SetPollInterval(10 * time.Millisecond)
	if p.poller.Interval() != time.Second {
		t.Errorf("expected 1s floor, got %s", p.poller.Interval())
	}
}
