package bringup

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AGPFMiner/iceflash/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusEndpoint(t *testing.T) {
	b, _ := newTestBringup("vga.bin", &fakeHardware{})
	srv := httptest.NewServer(b.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/iceflash/f_status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var data types.IceflashStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	require.NotNil(t, data.Status)
	assert.Equal(t, "idle", data.Status.State)
	assert.Equal(t, "vga.bin", data.Status.Bitstream)
}

func TestCtrlEndpoint(t *testing.T) {
	hw := &fakeHardware{}
	b, _ := newTestBringup(writeBitstream(t, 600), hw)
	srv := httptest.NewServer(b.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/iceflash/f_ctrl")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/iceflash/f_ctrl?command=reboot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/iceflash/f_ctrl?command=programbitstream")
	require.NoError(t, err)
	var status types.BringupStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(600), status.Written)
	assert.Contains(t, hw.Events(), "start")

	resp, err = http.Get(srv.URL + "/iceflash/f_ctrl?command=stop")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, hw.Events(), "stop")
}

func TestCtrlEndpointFailure(t *testing.T) {
	b, _ := newTestBringup("/nonexistent/vga.bin", &fakeHardware{})
	srv := httptest.NewServer(b.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/iceflash/f_ctrl?command=programbitstream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRPCGetStatus(t *testing.T) {
	b, _ := newTestBringup("vga.bin", &fakeHardware{})
	srv := httptest.NewServer(b.Router())
	defer srv.Close()

	body := `{"method":"bringup.GetStatus","params":[{"Who":"test"}],"id":1}`
	resp, err := http.Post(srv.URL+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Result StatusReply `json:"result"`
		Error  interface{} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Nil(t, out.Error)

	var status types.BringupStatus
	require.NoError(t, json.Unmarshal([]byte(out.Result.Status), &status))
	assert.Equal(t, types.Idle, status.Status)
}

func TestRPCProgram(t *testing.T) {
	hw := &fakeHardware{}
	b, _ := newTestBringup(writeBitstream(t, 257), hw)
	srv := httptest.NewServer(b.Router())
	defer srv.Close()

	body := `{"method":"bringup.Program","params":[{}],"id":2}`
	resp, err := http.Post(srv.URL+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Result ProgramReply `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(257), out.Result.Written)
	assert.Len(t, out.Result.Digest, 64)
}
