package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
	"github.com/meidoworks/nekoq-peernotify/logging"
)

var logger = logging.GetLogger("httpserver")

type HttpMethod string

var (
	MethodGet     HttpMethod = http.MethodGet
	MethodPost    HttpMethod = http.MethodPost
	MethodPut     HttpMethod = http.MethodPut
	MethodDelete  HttpMethod = http.MethodDelete
	MethodOptions HttpMethod = http.MethodOptions
	MethodHead    HttpMethod = http.MethodHead
	MethodPatch   HttpMethod = http.MethodPatch
)

type HttpServer struct {
	router *httprouter.Router

	listenAddr string

	server *http.Server

	GeneralErrorHandler func(err error)
}

func NewHttpServer(addr string) *HttpServer {
	h := httprouter.New()

	return &HttpServer{
		router:     h,
		listenAddr: addr,
	}
}

func (h *HttpServer) Add(method HttpMethod, path string, handler iface.HttpHandler) {
	h.router.Handle(newHandle(method, path, handler, h.GeneralErrorHandler))
}

// AddRaw mounts a plain http.Handler, e.g. the prometheus exposition handler.
func (h *HttpServer) AddRaw(method HttpMethod, path string, handler http.Handler) {
	h.router.Handler(string(method), path, handler)
}

func (h *HttpServer) Handler() http.Handler {
	return h.router
}

// Addr is the bound address once started.
func (h *HttpServer) Addr() string {
	return h.listenAddr
}

func (h *HttpServer) Startup() error {
	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return err
	}
	h.listenAddr = ln.Addr().String()
	server := &http.Server{
		Addr:    h.listenAddr,
		Handler: h.router,
	}
	h.server = server
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorln("http server:", err)
		}
	}()
	logger.Infoln("http server listens on:", h.listenAddr)
	return nil
}

func (h *HttpServer) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func newHandle(m HttpMethod, p string, h iface.HttpHandler, ef func(err error)) (method, path string, handle httprouter.Handle) {
	return string(m), p, func(writer http.ResponseWriter, request *http.Request, params httprouter.Params) {
		r, err := h(request, params)
		if err != nil {
			if ef != nil {
				ef(err)
			}
			writer.WriteHeader(http.StatusInternalServerError)
			return
		} else {
			if err := r.Render(writer); err != nil {
				if ef != nil {
					ef(err)
				}
			}
		}
	}
}
