package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/meidoworks/nekoq-peernotify/internal/httpserver"
	"github.com/meidoworks/nekoq-peernotify/internal/iface"
	"github.com/meidoworks/nekoq-peernotify/internal/storage"
	"github.com/meidoworks/nekoq-peernotify/internal/watermark"
	"github.com/meidoworks/nekoq-peernotify/logging"
)

var logger = logging.GetLogger("service")

type StartNotifierRequest struct {
	Peers []string `json:"peers"`
}

type PutWatermarkRequest struct {
	LastSyncedSequenceNumber uint64 `json:"lastSyncedSequenceNumber"`
}

var errMalformedBody = errors.New("malformed request body")

type HttpServiceContainer struct {
	h *httpserver.HttpServer

	notifier   iface.PeerNotifier
	replica    iface.Replica
	watermarks *watermark.Store
}

func NewHttpServiceContainer(h *httpserver.HttpServer) *HttpServiceContainer {
	return &HttpServiceContainer{
		h: h,
	}
}

func (h *HttpServiceContainer) SetupNotifier(n iface.PeerNotifier) *HttpServiceContainer {
	h.notifier = n
	h.h.Add(httpserver.MethodPost, "/notifier/start", func(request *http.Request, params httprouter.Params) (iface.HttpResult, error) {
		req := new(StartNotifierRequest)
		if err := json.NewDecoder(request.Body).Decode(req); err != nil {
			return iface.ErrorJsonResult(http.StatusBadRequest, errMalformedBody), nil
		}
		peers, err := watermark.DecodePeers(req.Peers)
		if err != nil {
			return iface.ErrorJsonResult(http.StatusBadRequest, err), nil
		}
		if err := h.notifier.Start(request.Context(), peers); err != nil {
			if errors.Is(err, iface.ErrInvalidPeerIdentity) {
				return iface.ErrorJsonResult(http.StatusBadRequest, err), nil
			}
			logger.Errorln("http notifier start error:", err)
			return iface.ErrorJsonResult(http.StatusInternalServerError, err), nil
		}
		return iface.StatusOnlyResult(http.StatusOK), nil
	})
	h.h.Add(httpserver.MethodPost, "/notifier/stop", func(request *http.Request, params httprouter.Params) (iface.HttpResult, error) {
		if err := h.notifier.Stop(request.Context()); err != nil {
			logger.Errorln("http notifier stop error:", err)
			return iface.ErrorJsonResult(http.StatusInternalServerError, err), nil
		}
		return iface.StatusOnlyResult(http.StatusOK), nil
	})
	h.h.Add(httpserver.MethodGet, "/notifier/status", func(request *http.Request, params httprouter.Params) (iface.HttpResult, error) {
		status, err := h.notifier.Status(request.Context())
		if err != nil {
			logger.Errorln("http notifier status error:", err)
			return nil, err
		}
		return iface.JsonResult(http.StatusOK, status), nil
	})
	return h
}

func (h *HttpServiceContainer) SetupReplica(replica iface.Replica) *HttpServiceContainer {
	h.replica = replica
	h.watermarks = watermark.NewStore(replica)
	h.h.Add(httpserver.MethodGet, "/documents/:id", func(request *http.Request, params httprouter.Params) (iface.HttpResult, error) {
		id := strings.TrimSpace(params.ByName("id"))
		if id == "" {
			return iface.StatusOnlyResult(http.StatusBadRequest), nil
		}
		doc, found, err := h.replica.Get(request.Context(), id)
		if errors.Is(err, storage.ErrKeyFormatInvalid) || errors.Is(err, storage.ErrReservedKey) {
			return iface.StatusOnlyResult(http.StatusBadRequest), nil
		} else if err != nil {
			logger.Errorln("http document get error:", err)
			return nil, err
		}
		if !found {
			return iface.StatusOnlyResult(http.StatusNotFound), nil
		}
		return iface.DocumentResult(doc), nil
	})
	h.h.Add(httpserver.MethodPut, "/documents/:id", func(request *http.Request, params httprouter.Params) (iface.HttpResult, error) {
		id := strings.TrimSpace(params.ByName("id"))
		if id == "" {
			return iface.StatusOnlyResult(http.StatusBadRequest), nil
		}
		dat, err := io.ReadAll(request.Body)
		if err != nil {
			logger.Errorln("http document put -> read http body error:", err)
			return nil, err
		}
		seq, err := h.replica.Put(request.Context(), &iface.Document{ID: id, Data: dat})
		if errors.Is(err, storage.ErrKeyFormatInvalid) || errors.Is(err, storage.ErrReservedKey) {
			return iface.ErrorJsonResult(http.StatusBadRequest, err), nil
		} else if err != nil {
			logger.Errorln("http document put -> persist error:", err)
			return nil, err
		}
		return iface.SequenceResult(seq), nil
	})
	h.h.Add(httpserver.MethodPut, "/watermarks/:peer", func(request *http.Request, params httprouter.Params) (iface.HttpResult, error) {
		peers, err := watermark.DecodePeers([]string{params.ByName("peer")})
		if err != nil || len(peers[0]) == 0 {
			return iface.StatusOnlyResult(http.StatusBadRequest), nil
		}
		req := new(PutWatermarkRequest)
		if err := json.NewDecoder(request.Body).Decode(req); err != nil {
			return iface.ErrorJsonResult(http.StatusBadRequest, errMalformedBody), nil
		}
		seq, err := h.watermarks.Put(request.Context(), peers[0], req.LastSyncedSequenceNumber)
		if err != nil {
			logger.Errorln("http watermark put error:", err)
			return nil, err
		}
		return iface.SequenceResult(seq), nil
	})
	return h
}

func (h *HttpServiceContainer) SetupMetrics(handler http.Handler) *HttpServiceContainer {
	h.h.AddRaw(httpserver.MethodGet, "/metrics", handler)
	return h
}

func (h *HttpServiceContainer) Handler() http.Handler {
	return h.h.Handler()
}

func (h *HttpServiceContainer) Startup() error {
	return h.h.Startup()
}

func (h *HttpServiceContainer) Stop(ctx context.Context) error {
	return h.h.Stop(ctx)
}
