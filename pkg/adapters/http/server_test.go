package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/botasky11/totml/internal/testutils"
	totmlhttp "github.com/botasky11/totml/pkg/adapters/http"
	"github.com/botasky11/totml/pkg/adapters/memory"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/botasky11/totml/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixingStepper appends a buggy draft, then fixes of it.
type fixingStepper struct {
	journal *domain.Journal
}

func (g *fixingStepper) Step(ctx context.Context, _ ports.Interpreter) (*domain.Node, error) {
	i := g.journal.Len()
	buggy := i == 0
	metric := domain.NewMetric(float64(i)/10, true)
	var parent *domain.Node
	if buggy {
		metric = domain.WorstMetric()
	} else {
		parent = g.journal.Nodes()[0]
	}
	n := testutils.ReviewedNode("plan", "print("+string(rune('a'+i))+")", parent, buggy, metric)
	return n, g.journal.Append(n)
}

func runner(g *fixingStepper) session.Factory {
	return func(ctx context.Context, exp *domain.Experiment, j *domain.Journal) (session.Stepper, ports.Interpreter, error) {
		g.journal = j
		return g, &testutils.FakeInterpreter{}, nil
	}
}

func setup(t *testing.T) (*session.Manager, *httptest.Server) {
	t.Helper()
	mgr := session.NewManager(memory.NewStore())
	srv := httptest.NewServer(totmlhttp.NewHandler(mgr,
		totmlhttp.WithVersion("1.2.3"),
		totmlhttp.WithMetrics(prometheus.NewRegistry()),
	))
	t.Cleanup(srv.Close)
	return mgr, srv
}

func completed(t *testing.T, mgr *session.Manager) *domain.Experiment {
	t.Helper()
	ctx := context.Background()
	exp, err := mgr.Create(ctx, "demo", domain.Task{Goal: "predict"}, 3, nil)
	require.NoError(t, err)
	exp, err = mgr.Run(ctx, exp.ID, runner(&fixingStepper{}))
	require.NoError(t, err)
	return exp
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_ReadEndpoints(t *testing.T) {
	mgr, srv := setup(t)
	exp := completed(t, mgr)
	base := srv.URL + "/experiments/" + exp.ID

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	_, body = get(t, srv.URL+"/info")
	assert.Contains(t, body, `"version":"1.2.3"`)

	code, body = get(t, srv.URL+"/experiments")
	require.Equal(t, http.StatusOK, code)
	var list []totmlhttp.ExperimentSummary
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 1)
	assert.Equal(t, domain.StatusCompleted, list[0].Status)

	code, body = get(t, base)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"completed"`)

	code, body = get(t, base+"/nodes")
	require.Equal(t, http.StatusOK, code)
	var nodes []domain.Node
	require.NoError(t, json.Unmarshal([]byte(body), &nodes))
	require.Len(t, nodes, 3)

	code, body = get(t, base+"/nodes/"+nodes[1].ID)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, nodes[1].ID)

	code, _ = get(t, base+"/nodes/missing")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = get(t, base+"/best")
	require.Equal(t, http.StatusOK, code)
	var best domain.Node
	require.NoError(t, json.Unmarshal([]byte(body), &best))
	assert.Equal(t, nodes[2].ID, best.ID)

	code, body = get(t, base+"/summary")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Buggy attempts so far: 1")

	code, body = get(t, base+"/tree")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(body, "graph TD"))
	assert.Contains(t, body, "best;")

	code, _ = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_NotFound(t *testing.T) {
	_, srv := setup(t)

	for _, path := range []string{"", "/nodes", "/best", "/summary", "/tree", "/events"} {
		code, _ := get(t, srv.URL+"/experiments/nope"+path)
		assert.Equal(t, http.StatusNotFound, code, path)
	}
}

func TestServer_DeleteAndCancel(t *testing.T) {
	mgr, srv := setup(t)
	exp := completed(t, mgr)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/experiments/"+exp.ID+"/cancel", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/experiments/"+exp.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	code, _ := get(t, srv.URL+"/experiments/"+exp.ID)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_SubscribeEvents(t *testing.T) {
	mgr, srv := setup(t)
	ctx := context.Background()

	exp, err := mgr.Create(ctx, "live", domain.Task{Goal: "predict"}, 2, nil)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/experiments/" + exp.ID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Run(ctx, exp.ID, runner(&fixingStepper{}))
		done <- err
	}()

	// The handler returns after the terminal event, closing the body.
	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, <-done)

	out := string(rest)
	assert.Contains(t, out, "event: experiment_started")
	assert.Equal(t, 2, strings.Count(out, "event: experiment_step"))
	assert.Contains(t, out, "event: experiment_completed")
}

func TestServer_WebSocket(t *testing.T) {
	mgr, srv := setup(t)
	ctx := context.Background()

	exp, err := mgr.Create(ctx, "ws", domain.Task{Goal: "predict"}, 2, nil)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/experiments/" + exp.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Run(ctx, exp.ID, runner(&fixingStepper{}))
		done <- err
	}()

	var types []domain.EventType
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev domain.ExperimentEvent
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		types = append(types, ev.Type)
	}
	require.NoError(t, <-done)

	assert.Equal(t, domain.EventExperimentStarted, types[0])
	assert.Equal(t, domain.EventExperimentCompleted, types[len(types)-1])
}
