package iface

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
)

const HeaderSequence = "X-Peernotify-Sequence"

type HttpHandler func(request *http.Request, params httprouter.Params) (HttpResult, error)

type HttpResult interface {
	Render(w http.ResponseWriter) error
}

// RenderFunc adapts a plain function to HttpResult.
type RenderFunc func(w http.ResponseWriter) error

func (f RenderFunc) Render(w http.ResponseWriter) error {
	return f(w)
}

// ErrorResponse is the body of every failed json request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SequenceResponse carries the sequence number a write was committed at.
type SequenceResponse struct {
	Sequence uint64 `json:"sequence"`
}

func JsonResult(status int, object any) HttpResult {
	return RenderFunc(func(w http.ResponseWriter) error {
		data, err := json.Marshal(object)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, err = w.Write(data)
		return err
	})
}

func ErrorJsonResult(status int, err error) HttpResult {
	return JsonResult(status, ErrorResponse{Error: err.Error()})
}

func SequenceResult(seq uint64) HttpResult {
	return JsonResult(http.StatusOK, SequenceResponse{Sequence: seq})
}

func StatusOnlyResult(status int) HttpResult {
	return RenderFunc(func(w http.ResponseWriter) error {
		w.WriteHeader(status)
		return nil
	})
}

// DocumentResult writes the opaque document payload with its sequence number in a header.
func DocumentResult(doc *Document) HttpResult {
	return RenderFunc(func(w http.ResponseWriter) error {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set(HeaderSequence, strconv.FormatUint(doc.Sequence, 10))
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(doc.Data)
		return err
	})
}
