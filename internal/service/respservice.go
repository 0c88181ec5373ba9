package service

import (
	"strings"

	"github.com/tidwall/redcon"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
)

type Resp2Service struct {
	server         *redcon.Server
	commandMapping map[string]iface.RespCommandHandler

	config *RespServiceConfig
}

type RespServiceConfig struct {
	Addr string

	DebugPrintConnection bool
}

func NewResp2Service(config *RespServiceConfig) *Resp2Service {
	r := new(Resp2Service)

	server := redcon.NewServerNetwork("tcp", config.Addr, r.processCommand, r.acceptConn, r.closedConn)
	r.server = server
	r.config = config
	r.commandMapping = make(map[string]iface.RespCommandHandler)
	r.AddCommandHandler("PING", func(args []iface.RespArg) (iface.RespResult, error) {
		return iface.RespStringResult("PONG"), nil
	})

	return r
}

func (r *Resp2Service) ServeAndWait() error {
	return r.server.ListenAndServe()
}

// ServeAndSignal reports on signal once listening, or the listen error.
func (r *Resp2Service) ServeAndSignal(signal chan error) error {
	return r.server.ListenServeAndSignal(signal)
}

// Addr is only valid once listening.
func (r *Resp2Service) Addr() string {
	return r.server.Addr().String()
}

func (r *Resp2Service) Close() error {
	return r.server.Close()
}

func (r *Resp2Service) processCommand(conn redcon.Conn, cmd redcon.Command) {
	c := strings.ToLower(string(cmd.Args[0]))
	h, ok := r.commandMapping[c]
	if !ok {
		conn.WriteError("Unknown Command:" + c)
		return
	}
	var args []iface.RespArg
	for _, v := range cmd.Args {
		args = append(args, v)
	}
	result, err := h(args)
	if err != nil {
		logger.Errorln("Resp2Service process command failed:", err)
		conn.WriteError("Failure")
		return
	}
	if err := result(conn); err != nil {
		logger.Errorln("Resp2Service render result failed:", err)
		return
	}
}

func (r *Resp2Service) AddCommandHandler(command string, h iface.RespCommandHandler) {
	r.commandMapping[strings.ToLower(command)] = h
}

func (r *Resp2Service) acceptConn(conn redcon.Conn) bool {
	if r.config.DebugPrintConnection {
		logger.Debugln("Resp2Service accept redis proto peer connection:", conn.RemoteAddr())
	}
	return true
}

func (r *Resp2Service) closedConn(conn redcon.Conn, err error) {
	if r.config.DebugPrintConnection {
		logger.Debugln("Resp2Service close redis proto peer connection:", conn.RemoteAddr(), "error:", err)
	}
}
