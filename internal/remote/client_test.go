package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorenew/internal/app"
	"autorenew/internal/domain"
	"autorenew/internal/msg"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{Endpoint: srv.URL + "/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestExecutePostsSenderMsgAndFunds(t *testing.T) {
	var got ExecuteRequest
	var path, reqID string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		reqID = r.Header.Get(RequestIDHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"tag":"7"}}`))
	})

	call := msg.RemoteCall{
		Contract: "archway1scheduler",
		Msg:      json.RawMessage(`{"create_task":{}}`),
		Funds:    []domain.Coin{domain.NewCoin("aarch", domain.NewAmount(5))},
	}
	data, err := c.Execute(context.Background(), app.Message{Origin: "archway1module", Call: call})
	require.NoError(t, err)

	assert.Equal(t, "/contracts/archway1scheduler/execute", path)
	assert.NotEmpty(t, reqID)
	assert.Equal(t, domain.Addr("archway1module"), got.Sender)
	assert.JSONEq(t, `{"create_task":{}}`, string(got.Msg))
	require.Len(t, got.Funds, 1)
	assert.Equal(t, "5aarch", got.Funds[0].String())
	assert.JSONEq(t, `{"tag":"7"}`, string(data))
}

func TestQueryContractDecodesData(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contracts/archway1scheduler/query", r.URL.Path)
		var q QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.JSONEq(t, `{"executor_for":{"owner":"archway1module","tag":"0"}}`, string(q.Msg))
		_, _ = w.Write([]byte(`{"data":{"executor":"archway1agent"}}`))
	})

	var out msg.ExecutorForResponse
	q := msg.SchedulerQueryMsg{ExecutorFor: &msg.ExecutorForQuery{Owner: "archway1module", Tag: "0"}}
	require.NoError(t, c.QueryContract(context.Background(), "archway1scheduler", q, &out))
	assert.Equal(t, domain.Addr("archway1agent"), out.Executor)
}

func TestErrorStatusesFail(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"insufficient funds"}`))
	})
	_, err := c.Execute(context.Background(), app.Message{Call: msg.RemoteCall{Contract: "archway1registry"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestGatewayErrorFieldFails(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"out of gas"}`))
	})
	_, err := c.Execute(context.Background(), app.Message{Call: msg.RemoteCall{Contract: "archway1registry"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of gas")
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := New(Options{Endpoint: "not a url"})
	assert.Error(t, err)
}
