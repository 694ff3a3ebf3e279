package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/scenario-sim/internal/catalog"
	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/events"
	"github.com/hochfrequenz/scenario-sim/internal/fixtures"
	"github.com/hochfrequenz/scenario-sim/internal/narrative"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
	"github.com/hochfrequenz/scenario-sim/internal/packet"
	"github.com/hochfrequenz/scenario-sim/internal/simstore/memstore"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := observability.Discard()
	store := memstore.New()

	engine := timeline.New(store, timeline.Config{Logger: logger, Purger: store})
	exec := events.NewExecutor(store, engine, logger)
	engine.SetCatchUp(exec)
	start := domain.MustParseDate("2025-01-01")
	if _, err := engine.Initialize(context.Background(), &start); err != nil {
		t.Fatal(err)
	}

	sched := events.NewScheduler(store, engine, logger)
	staff, _ := fixtures.Employees()
	s := NewServer(Deps{
		Clock:     engine,
		Scheduler: sched,
		Executor:  exec,
		Packets:   packet.New(store, sched, engine, narrative.NewLoader(""), staff, logger),
		Templates: catalog.Builtin(),
		Logger:    logger,
	}, ":0")

	engine.Subscribe(func(st timeline.State) { s.Broadcast(StreamEvent{Type: EventClock, Data: st}) })
	exec.OnFired(func(fired []domain.ScheduledEvent) { s.Broadcast(StreamEvent{Type: EventExecuted, Data: fired}) })
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestClockHandlers(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "GET", "/api/clock", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	st := decodeBody[timeline.State](t, w)
	if st.CurrentDate.String() != "2025-01-01" || !st.IsPaused {
		t.Errorf("state = %+v", st)
	}

	// Paused tick is a no-op, not an error.
	adv := decodeBody[timeline.Advance](t, do(t, s, "POST", "/api/clock/tick", `{"days": 3}`))
	if adv.Applied {
		t.Error("tick while paused applied")
	}

	do(t, s, "POST", "/api/clock/resume", "")
	adv = decodeBody[timeline.Advance](t, do(t, s, "POST", "/api/clock/tick", `{"days": 3}`))
	if !adv.Applied || adv.To.String() != "2025-01-04" {
		t.Errorf("tick = %+v", adv)
	}

	adv = decodeBody[timeline.Advance](t, do(t, s, "POST", "/api/clock/tick", ""))
	if adv.To.String() != "2025-01-05" {
		t.Errorf("default tick To = %s, want 2025-01-05", adv.To)
	}

	adv = decodeBody[timeline.Advance](t, do(t, s, "POST", "/api/clock/jump", `{"date": "2025-02-01"}`))
	if adv.To.String() != "2025-02-01" {
		t.Errorf("jump To = %s", adv.To)
	}

	rb := decodeBody[timeline.Rollback](t, do(t, s, "POST", "/api/clock/rollback", `{"date": "2025-01-10"}`))
	if rb.To.String() != "2025-01-10" || rb.Policy != timeline.RollbackPurge {
		t.Errorf("rollback = %+v", rb)
	}

	st = decodeBody[timeline.State](t, do(t, s, "POST", "/api/clock/pause", ""))
	if !st.IsPaused {
		t.Error("pause did not pause")
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method, path, body string
		wantStatus         int
		wantCode           string
	}{
		{"POST", "/api/clock/tick", `{"days": -2}`, http.StatusConflict, "invalid_operation"},
		{"POST", "/api/clock/jump", `{}`, http.StatusConflict, "invalid_operation"},
		{"POST", "/api/clock/jump", `{"date": "tomorrow"}`, http.StatusConflict, "invalid_operation"},
		{"POST", "/api/branches/missing/switch", "", http.StatusNotFound, "not_found"},
		{"POST", "/api/branches", `{"name": ""}`, http.StatusConflict, "invalid_operation"},
		{"GET", "/api/events/missing", "", http.StatusNotFound, "not_found"},
		{"POST", "/api/events/missing/execute", "", http.StatusNotFound, "not_found"},
		{"GET", "/api/events?type=disaster", "", http.StatusConflict, "invalid_operation"},
		{"POST", "/api/events", `{"template": "Nope", "date": "2025-01-02"}`, http.StatusNotFound, "not_found"},
		{"POST", "/api/events", `{"name": "Far", "type": "custom", "in_days": 3000000}`, http.StatusConflict, "invalid_operation"},
		{"GET", "/api/packets/2025-06-01", "", http.StatusConflict, "invalid_operation"},
		{"GET", "/api/packets/June", "", http.StatusBadRequest, "invalid_date"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decodeBody[ErrorResponse](t, w)
			if resp.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestBranchHandlers(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "POST", "/api/branches", `{"name": "What-if", "from": "2025-03-01"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want 201", w.Code)
	}
	b := decodeBody[domain.TimelineBranch](t, w)

	adv := decodeBody[timeline.Advance](t, do(t, s, "POST", "/api/branches/"+b.ID+"/switch", ""))
	if adv.To.String() != "2025-03-01" {
		t.Errorf("switch To = %s, want 2025-03-01", adv.To)
	}

	branches := decodeBody[[]domain.TimelineBranch](t, do(t, s, "GET", "/api/branches", ""))
	if len(branches) != 1 || !branches[0].IsActive {
		t.Errorf("branches = %+v", branches)
	}
}

func TestEventHandlers(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "POST", "/api/events", `{"template": "audit notice", "date": "2025-01-03"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want 201: %s", w.Code, w.Body.String())
	}
	audit := decodeBody[domain.ScheduledEvent](t, w)
	if audit.Name != "Audit Notice" || audit.Type != domain.EventSmallProblem {
		t.Errorf("scheduled = %+v", audit)
	}

	w = do(t, s, "POST", "/api/events", `{"name": "Board Offsite", "type": "custom", "in_days": 5}`)
	offsite := decodeBody[domain.ScheduledEvent](t, w)
	if offsite.ScheduledFor.String() != "2025-01-06" {
		t.Errorf("in_days ScheduledFor = %s, want 2025-01-06", offsite.ScheduledFor)
	}

	moved := decodeBody[domain.ScheduledEvent](t, do(t, s, "POST", "/api/events/"+offsite.ID+"/reschedule", `{"date": "2025-01-02"}`))
	if moved.ScheduledFor.String() != "2025-01-02" {
		t.Errorf("rescheduled to %s", moved.ScheduledFor)
	}

	list := decodeBody[[]domain.ScheduledEvent](t, do(t, s, "GET", "/api/events?executed=false", ""))
	if len(list) != 2 || list[0].ID != offsite.ID {
		t.Fatalf("list = %+v", list)
	}

	do(t, s, "POST", "/api/clock/jump", `{"date": "2025-01-02"}`)
	report := decodeBody[domain.ExecutionReport](t, do(t, s, "POST", "/api/events/run-due", ""))
	if len(report.Executed) != 0 {
		t.Errorf("run-due after jump executed %v, want nothing left", report.Executed)
	}

	exec := decodeBody[ExecuteResponse](t, do(t, s, "POST", "/api/events/"+audit.ID+"/execute", ""))
	if !exec.Executed || exec.Event.ExecutedAt.String() != "2025-01-02" {
		t.Errorf("execute = %+v", exec)
	}
	exec = decodeBody[ExecuteResponse](t, do(t, s, "POST", "/api/events/"+audit.ID+"/execute", ""))
	if exec.Executed {
		t.Error("second execute reported a transition")
	}

	w = do(t, s, "POST", "/api/events/"+audit.ID+"/reschedule", `{"date": "2025-02-01"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("reschedule executed event Status = %d, want 409", w.Code)
	}

	executed := decodeBody[[]domain.ScheduledEvent](t, do(t, s, "GET", "/api/events?executed_on=2025-01-02", ""))
	if len(executed) != 2 {
		t.Errorf("executed_on list = %d events, want 2", len(executed))
	}
}

func TestPacketHandler(t *testing.T) {
	s := newTestServer(t)

	do(t, s, "POST", "/api/events", `{"template": "RFP Email - Model Replacement", "date": "2025-01-01"}`)
	do(t, s, "POST", "/api/events/run-due", "")

	w := do(t, s, "GET", "/api/packets/2025-01-01", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}
	p := decodeBody[domain.DayPacket](t, w)
	if len(p.Emails) != 1 || p.CompanyStatus.Stage != "Week 1 - Elevated" {
		t.Errorf("packet = %+v", p)
	}

	again := decodeBody[domain.DayPacket](t, do(t, s, "GET", "/api/packets/2025-01-01", ""))
	if again.ID != p.ID {
		t.Error("GET regenerated an existing packet")
	}
	regen := decodeBody[domain.DayPacket](t, do(t, s, "POST", "/api/packets/2025-01-01", ""))
	if regen.ID == p.ID {
		t.Error("POST did not regenerate")
	}
}

func TestTemplatesHandler(t *testing.T) {
	s := newTestServer(t)

	all := decodeBody[[]domain.EventTemplate](t, do(t, s, "GET", "/api/templates", ""))
	if len(all) != 6 {
		t.Errorf("templates = %d, want 6", len(all))
	}
	bait := decodeBody[[]domain.EventTemplate](t, do(t, s, "GET", "/api/templates?type=bait", ""))
	if len(bait) != 3 {
		t.Errorf("bait templates = %d, want 3", len(bait))
	}
}

func TestSSEStream(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	lines := bufio.NewScanner(resp.Body)

	next := func() StreamEvent {
		t.Helper()
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				var ev StreamEvent
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					t.Fatal(err)
				}
				return ev
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return StreamEvent{}
	}

	if ev := next(); ev.Type != EventClock {
		t.Fatalf("first event = %q, want clock", ev.Type)
	}

	waitForClients(t, s.hub, 1)
	if _, err := http.Post(ts.URL+"/api/clock/jump", "application/json", bytes.NewBufferString(`{"date": "2025-01-09"}`)); err != nil {
		t.Fatal(err)
	}

	ev := next()
	if ev.Type != EventClock {
		t.Fatalf("event = %q, want clock", ev.Type)
	}
	if data, _ := ev.Data.(map[string]any); data["current_date"] != "2025-01-09" {
		t.Errorf("streamed state = %v", ev.Data)
	}
}

func TestWebSocketStream(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev StreamEvent
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != EventClock {
		t.Fatalf("first message = %+v, %v", ev, err)
	}

	waitForClients(t, s.hub, 1)
	do(t, s, "POST", "/api/events", `{"name": "Board Offsite", "type": "custom", "date": "2025-01-01"}`)
	do(t, s, "POST", "/api/events/run-due", "")

	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventExecuted {
		t.Errorf("event = %q, want %q", ev.Type, EventExecuted)
	}
}

func TestWebSocketStream_CatchUpIsOneMessage(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev StreamEvent
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != EventClock {
		t.Fatalf("first message = %+v, %v", ev, err)
	}
	waitForClients(t, s.hub, 1)

	const n = 3 * clientBuffer
	for i := 0; i < n; i++ {
		do(t, s, "POST", "/api/events", fmt.Sprintf(`{"name": "Standup %d", "type": "custom", "date": "2025-01-01"}`, i))
	}
	do(t, s, "POST", "/api/events/run-due", "")

	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventExecuted {
		t.Fatalf("event = %q, want %q", ev.Type, EventExecuted)
	}
	if batch, _ := ev.Data.([]any); len(batch) != n {
		t.Errorf("batch size = %d, want %d", len(batch), n)
	}
	if got := s.hub.Clients(); got != 1 {
		t.Errorf("clients after burst = %d, want 1", got)
	}
}

func TestHub_BroadcastReportsDrops(t *testing.T) {
	h := NewHub()
	for i := 0; i < broadcastBuffer; i++ {
		if !h.Broadcast(StreamEvent{Type: EventClock}) {
			t.Fatalf("Broadcast %d dropped with room in the queue", i)
		}
	}
	if h.Broadcast(StreamEvent{Type: EventClock}) {
		t.Error("Broadcast on a full queue should report a drop")
	}
	if got := h.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.Clients() < n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
