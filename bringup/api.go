package bringup

import (
	j "encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/AGPFMiner/iceflash/types"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json"
	"go.uber.org/zap"
)

type RPCArgs struct {
	Who string
}

type StatusReply struct {
	Status string
}

// GetStatus is the JSON-RPC method bringup.GetStatus.
func (b *Bringup) GetStatus(r *http.Request, args *RPCArgs, reply *StatusReply) error {
	status := b.Status()
	res, err := j.Marshal(&status)
	if err != nil {
		return err
	}
	reply.Status = string(res)
	return nil
}

type ProgramReply struct {
	Written int64
	Digest  string
}

// Program is the JSON-RPC method bringup.Program. It blocks until the
// run finishes.
func (b *Bringup) Program(r *http.Request, args *RPCArgs, reply *ProgramReply) error {
	if err := b.Run(); err != nil {
		return err
	}
	status := b.Status()
	reply.Written = status.Written
	reply.Digest = status.Digest
	return nil
}

// Router serves JSON-RPC on /rpc and the plain HTTP control endpoints.
func (b *Bringup) Router() *mux.Router {
	s := rpc.NewServer()
	s.RegisterCodec(json.NewCodec(), "application/json")
	s.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")
	s.RegisterService(b, "bringup")

	r := mux.NewRouter()
	r.Handle("/rpc", s)
	r.HandleFunc("/iceflash/f_status", b.GetIceflashStatus).Methods(http.MethodGet)
	r.HandleFunc("/iceflash/f_ctrl", b.IceflashCtrl)
	return r
}

// Serve blocks serving Router on listen.
func (b *Bringup) Serve(listen string) error {
	b.logger.Info("api", zap.String("Listen", listen))
	return http.ListenAndServe(listen, b.Router())
}

func (b *Bringup) GetIceflashStatus(w http.ResponseWriter, r *http.Request) {
	status := b.Status()
	data := &types.IceflashStatus{
		Status: &status,
		Time:   time.Now().Unix(),
	}
	writeJSON(w, http.StatusOK, data)
}

func (b *Bringup) IceflashCtrl(w http.ResponseWriter, r *http.Request) {
	cmds, ok := r.URL.Query()["command"]
	if !ok || len(cmds[0]) < 1 {
		b.logger.Warn("api", zap.String("Stat", "Url Param 'command' is missing"))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing command"})
		return
	}

	cmd := cmds[0]
	b.logger.Info("api", zap.String("Command", cmd))
	var err error
	switch cmd {
	case "programbitstream":
		err = b.Run()
	case "stop":
		err = b.Stop()
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown command " + cmd})
		return
	}

	switch {
	case errors.Is(err, ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		status := b.Status()
		writeJSON(w, http.StatusOK, &status)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	j.NewEncoder(w).Encode(v)
}
