package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lengoman/grpc-hub/internal/eventbus"
	"github.com/lengoman/grpc-hub/internal/proxy"
	"github.com/lengoman/grpc-hub/internal/registry"
)

func newTestServer() (*Server, *httptest.Server) {
	bus := eventbus.New("hi", 8, nil)
	store := registry.New(bus)
	px := proxy.New()
	s := New(store, bus, px, nil)
	return s, httptest.NewServer(s.Mux())
}

func TestHandleRegisterAndList(t *testing.T) {
	_, ts := newTestServer()
	defer ts.Close()

	body := strings.NewReader(`{"service_name":"dividend","address":"10.0.0.1","port":"9001"}`)
	resp, err := http.Post(ts.URL+"/api/services", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var registered map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))
	assert.NotEmpty(t, registered["service_id"])

	listResp, err := http.Get(ts.URL + "/api/services?service_name=dividend")
	require.NoError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var listed struct {
		Services []registry.Record `json:"services"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))
	require.Len(t, listed.Services, 1)
	assert.Equal(t, "dividend", listed.Services[0].ServiceName)
}

func TestHandleGetUnknownReturns404(t *testing.T) {
	_, ts := newTestServer()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/services/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleUnregister(t *testing.T) {
	_, ts := newTestServer()
	defer ts.Close()

	body := strings.NewReader(`{"service_name":"dividend","address":"10.0.0.1","port":"9001"}`)
	resp, err := http.Post(ts.URL+"/api/services", "application/json", body)
	require.NoError(t, err)
	var registered map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/services/"+registered["service_id"], nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	var delBody map[string]any
	require.NoError(t, json.NewDecoder(delResp.Body).Decode(&delBody))
	assert.Equal(t, true, delBody["success"])

	getResp, err := http.Get(ts.URL + "/api/services/" + registered["service_id"])
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestHandleForwardCall_NoDispatchableInstance(t *testing.T) {
	_, ts := newTestServer()
	defer ts.Close()

	body := strings.NewReader(`{"service":"nope","method":"Foo","input":{}}`)
	resp, err := http.Post(ts.URL+"/api/grpc-call", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, false, out["success"])
}
