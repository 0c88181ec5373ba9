package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/meidoworks/nekoq-peernotify/internal/iface"
	"github.com/meidoworks/nekoq-peernotify/internal/watermark"
)

const respCommandTimeout = 30 * time.Second

type RespNotifierHandler struct {
	notifier   iface.PeerNotifier
	replica    iface.Replica
	watermarks *watermark.Store
}

func NewRespNotifierHandler(notifier iface.PeerNotifier, replica iface.Replica) RespNotifierHandler {
	return RespNotifierHandler{
		notifier:   notifier,
		replica:    replica,
		watermarks: watermark.NewStore(replica),
	}
}

func (h RespNotifierHandler) Register(rs iface.RespRegister) {
	rs.AddCommandHandler("notifier.start", h.start)
	rs.AddCommandHandler("notifier.stop", h.stop)
	rs.AddCommandHandler("notifier.status", h.status)
	rs.AddCommandHandler("doc.put", h.put)
	rs.AddCommandHandler("doc.get", h.get)
	rs.AddCommandHandler("watermark.set", h.setWatermark)
}

func (h RespNotifierHandler) start(args []iface.RespArg) (iface.RespResult, error) {
	list := make([]string, 0, len(args)-1)
	for _, v := range args[1:] {
		list = append(list, string(v))
	}
	peers, err := watermark.DecodePeers(list)
	if err != nil {
		return iface.RespErrorResult(err.Error()), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), respCommandTimeout)
	defer cancel()
	if err := h.notifier.Start(ctx, peers); err != nil {
		if errors.Is(err, iface.ErrInvalidPeerIdentity) {
			return iface.RespErrorResult(err.Error()), nil
		}
		logger.Errorln("RespNotifierHandler start failed:", err)
		return iface.RespErrorResult("Start notifier failed."), nil
	}
	return iface.RespOKResult(), nil
}

func (h RespNotifierHandler) stop(args []iface.RespArg) (iface.RespResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), respCommandTimeout)
	defer cancel()
	if err := h.notifier.Stop(ctx); err != nil {
		logger.Errorln("RespNotifierHandler stop failed:", err)
		return iface.RespErrorResult("Stop notifier failed."), nil
	}
	return iface.RespOKResult(), nil
}

func (h RespNotifierHandler) status(args []iface.RespArg) (iface.RespResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), respCommandTimeout)
	defer cancel()
	status, err := h.notifier.Status(ctx)
	if err != nil {
		return nil, err
	}
	return iface.RespJsonResult(status), nil
}

func (h RespNotifierHandler) get(args []iface.RespArg) (iface.RespResult, error) {
	if len(args) < 2 {
		return iface.RespErrorResult("lack arguments"), nil
	}
	doc, found, err := h.replica.Get(context.Background(), string(args[1]))
	if err != nil {
		logger.Errorln("RespNotifierHandler get failed:", err)
		return iface.RespErrorResult("Get document failed."), nil
	}
	if !found {
		return iface.RespNilResult(), nil
	} else {
		return iface.RespValueResult(doc.Data), nil
	}
}

func (h RespNotifierHandler) put(args []iface.RespArg) (iface.RespResult, error) {
	if len(args) < 3 {
		return iface.RespErrorResult("lack arguments"), nil
	}
	seq, err := h.replica.Put(context.Background(), &iface.Document{ID: string(args[1]), Data: args[2]})
	if err != nil {
		logger.Errorln("RespNotifierHandler put failed:", err)
		return iface.RespErrorResult("Put document failed"), nil
	}
	return iface.RespSequenceResult(seq), nil
}

func (h RespNotifierHandler) setWatermark(args []iface.RespArg) (iface.RespResult, error) {
	if len(args) < 3 {
		return iface.RespErrorResult("lack arguments"), nil
	}
	peers, err := watermark.DecodePeers([]string{string(args[1])})
	if err != nil || len(peers[0]) == 0 {
		return iface.RespErrorResult("invalid peer"), nil
	}
	last, err := strconv.ParseUint(string(args[2]), 10, 64)
	if err != nil {
		return iface.RespErrorResult("invalid sequence number"), nil
	}
	seq, err := h.watermarks.Put(context.Background(), peers[0], last)
	if err != nil {
		logger.Errorln("RespNotifierHandler set watermark failed:", err)
		return iface.RespErrorResult("Set watermark failed"), nil
	}
	return iface.RespSequenceResult(seq), nil
}
