package pinbox

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVideo struct {
	status VideoStatus
}

func (sv staticVideo) Status() VideoStatus {
	return sv.status
}

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()

	r, _, _ := newMockRegistry(t)
	s := NewServer("", r, staticVideo{status: VideoStatus{File: "gates.mp4", Pid: 42, Running: true, Launches: 3}})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, r
}

func doRequest(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()

	var req *http.Request
	var err error
	if len(body) > 0 {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
	} else {
		req, err = http.NewRequest(method, url, nil)
	}
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	return resp.StatusCode, raw
}

func decodeRecord(t *testing.T, raw []byte) PinRecord {
	t.Helper()
	rec := PinRecord{}
	require.NoError(t, json.Unmarshal(raw, &rec))
	return rec
}

func TestServerCreateAndList(t *testing.T) {
	ts, _ := newTestServer(t)

	status, raw := doRequest(t, http.MethodPost, ts.URL+"/pins/", `{"pin_num": 21, "direction": "out", "name": "led1"}`)
	require.Equal(t, http.StatusCreated, status)
	rec := decodeRecord(t, raw)
	assert.Equal(t, 1, rec.Id)
	assert.Equal(t, StateOff, rec.State)

	status, raw = doRequest(t, http.MethodPost, ts.URL+"/pins/", `{"pin_num": 26, "direction": "in", "name": "button1", "rising_url": "http://localhost/led1?state=on"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, StateOn, decodeRecord(t, raw).State)

	status, raw = doRequest(t, http.MethodGet, ts.URL+"/pins/", "")
	require.Equal(t, http.StatusOK, status)
	var list []PinRecord
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "led1", list[0].Name)
	assert.Equal(t, "button1", list[1].Name)
}

func TestServerCreateErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	status, _ := doRequest(t, http.MethodPost, ts.URL+"/pins/", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/pins/", `{"pin_num": "x"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/pins/", `{"pin_num": 21, "direction": "up"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/pins/", `{"pin_num": 21, "direction": "out", "name": "led1"}`)
	require.Equal(t, http.StatusCreated, status)

	status, raw := doRequest(t, http.MethodPost, ts.URL+"/pins/", `{"pin_num": 20, "direction": "out", "name": "led1"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(raw), "pin already registered")
}

func TestServerById(t *testing.T) {
	ts, r := newTestServer(t)
	_, err := r.Create(PinRecord{PinNum: 21, Direction: DirectionOut, Name: "appr_bell"})
	require.NoError(t, err)

	status, raw := doRequest(t, http.MethodGet, ts.URL+"/pins/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "appr_bell", decodeRecord(t, raw).Name)

	status, raw = doRequest(t, http.MethodGet, ts.URL+"/pins/1?state=on", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, StateOn, decodeRecord(t, raw).State)

	status, raw = doRequest(t, http.MethodPut, ts.URL+"/pins/1", `{"state": "off", "color": "red"}`)
	require.Equal(t, http.StatusOK, status)
	rec := decodeRecord(t, raw)
	assert.Equal(t, StateOff, rec.State)
	assert.Equal(t, "red", rec.Color)

	status, raw = doRequest(t, http.MethodGet, ts.URL+"/pins/1?state=pulse", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, StateOff, decodeRecord(t, raw).State)
}

func TestServerByName(t *testing.T) {
	ts, r := newTestServer(t)
	_, err := r.Create(PinRecord{PinNum: 12, Direction: DirectionOut, Name: "lh-bj-lc"})
	require.NoError(t, err)

	status, raw := doRequest(t, http.MethodGet, ts.URL+"/pins/name/lh-bj-lc?state=on", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, StateOn, decodeRecord(t, raw).State)

	status, raw = doRequest(t, http.MethodPut, ts.URL+"/pins/name/lh-bj-lc", `{"state": "off"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, StateOff, decodeRecord(t, raw).State)

	status, raw = doRequest(t, http.MethodGet, ts.URL+"/pins/name/lh-bj-lc", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 12, int(decodeRecord(t, raw).PinNum))
}

func TestServerErrors(t *testing.T) {
	ts, r := newTestServer(t)
	_, err := r.Create(PinRecord{PinNum: 21, Direction: DirectionOut, Name: "led1"})
	require.NoError(t, err)

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/pins/99", "", http.StatusNotFound},
		{http.MethodGet, "/pins/led1", "", http.StatusNotFound},
		{http.MethodPut, "/pins/99", `{"state": "on"}`, http.StatusNotFound},
		{http.MethodGet, "/pins/name/nope", "", http.StatusNotFound},
		{http.MethodPut, "/pins/name/nope", `{"state": "on"}`, http.StatusNotFound},
		{http.MethodGet, "/pins/other/led1", "", http.StatusNotFound},
		{http.MethodPut, "/pins/1", "", http.StatusBadRequest},
		{http.MethodPut, "/pins/name/led1", "", http.StatusBadRequest},
		{http.MethodPut, "/pins/1", "null", http.StatusBadRequest},
		{http.MethodPut, "/pins/name/led1", " null ", http.StatusBadRequest},
		{http.MethodPost, "/pins/", "null", http.StatusBadRequest},
		{http.MethodPut, "/pins/1", `{"state": "dim"}`, http.StatusBadRequest},
		{http.MethodGet, "/pins/1?state=dim", "", http.StatusBadRequest},
		{http.MethodGet, "/pins/name/led1?state=dim", "", http.StatusBadRequest},
	}

	for _, c := range cases {
		t.Run(c.method+" "+c.path, func(t *testing.T) {
			status, raw := doRequest(t, c.method, ts.URL+c.path, c.body)
			assert.Equal(t, c.want, status)

			msg := errorResponse{}
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.NotEmpty(t, msg.Message)
		})
	}
}

func TestServerVideoStatus(t *testing.T) {
	ts, _ := newTestServer(t)

	status, raw := doRequest(t, http.MethodGet, ts.URL+"/video", "")
	require.Equal(t, http.StatusOK, status)

	vs := VideoStatus{}
	require.NoError(t, json.Unmarshal(raw, &vs))
	assert.Equal(t, VideoStatus{File: "gates.mp4", Pid: 42, Running: true, Launches: 3}, vs)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errorStatus(ErrPinNotFound))
	assert.Equal(t, http.StatusBadRequest, errorStatus(ErrNoPayload))
	assert.Equal(t, http.StatusConflict, errorStatus(ErrDuplicate))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(assert.AnError))
}
