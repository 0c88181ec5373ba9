package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrBadRequest = errors.New("bad request")

type Status struct {
	Running         bool     `json:"running"`
	Generation      uint64   `json:"generation"`
	RequestedPeers  int      `json:"requested_peers"`
	AdvertisedPeers []string `json:"advertised_peers"`
	LastSequence    uint64   `json:"last_sequence"`
	PendingDebounce bool     `json:"pending_debounce"`
	PendingRefresh  bool     `json:"pending_refresh"`
}

type sequenceResult struct {
	Sequence uint64 `json:"sequence"`
}

type errorResult struct {
	Error string `json:"error"`
}

type HttpServiceClient struct {
	endpoints []string
	client    *resty.Client
}

func NewHttpServiceClient(endpoint string) *HttpServiceClient {
	return &HttpServiceClient{
		endpoints: []string{strings.TrimSuffix(endpoint, "/")},
		client: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// StartNotifier asks the node to advertise the eligible subset of peers.
func (h *HttpServiceClient) StartNotifier(ctx context.Context, peers [][]byte) error {
	list := make([]string, 0, len(peers))
	for _, p := range peers {
		list = append(list, base64.RawURLEncoding.EncodeToString(p))
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string][]string{"peers": list}).
		SetError(new(errorResult)).
		Post(h.pickEndpoint() + "/notifier/start")
	if err != nil {
		return err
	}
	return checkStatus("start notifier", resp)
}

func (h *HttpServiceClient) StopNotifier(ctx context.Context) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetError(new(errorResult)).
		Post(h.pickEndpoint() + "/notifier/stop")
	if err != nil {
		return err
	}
	return checkStatus("stop notifier", resp)
}

func (h *HttpServiceClient) Status(ctx context.Context) (*Status, error) {
	status := new(Status)
	resp, err := h.client.R().
		SetContext(ctx).
		SetResult(status).
		Get(h.pickEndpoint() + "/notifier/status")
	if err != nil {
		return nil, err
	}
	if err := checkStatus("notifier status", resp); err != nil {
		return nil, err
	}
	return status, nil
}

func (h *HttpServiceClient) PutDocument(ctx context.Context, id string, val []byte) (uint64, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, errors.New("document id is empty")
	}
	result := new(sequenceResult)
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(val).
		SetResult(result).
		SetError(new(errorResult)).
		SetPathParam("id", id).
		Put(h.pickEndpoint() + "/documents/{id}")
	if err != nil {
		return 0, err
	}
	if err := checkStatus("put document", resp); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

func (h *HttpServiceClient) GetDocument(ctx context.Context, id string) ([]byte, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, errors.New("document id is empty")
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get(h.pickEndpoint() + "/documents/{id}")
	if err != nil {
		return nil, false, err
	}
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return nil, false, nil
	case http.StatusOK:
		return resp.Body(), true, nil
	default:
		return nil, false, checkStatus("get document", resp)
	}
}

// PutWatermark records the sequence a peer synchronized up to.
func (h *HttpServiceClient) PutWatermark(ctx context.Context, peer []byte, seq uint64) (uint64, error) {
	if len(peer) == 0 {
		return 0, errors.New("peer is empty")
	}
	result := new(sequenceResult)
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]uint64{"lastSyncedSequenceNumber": seq}).
		SetResult(result).
		SetPathParam("peer", base64.RawURLEncoding.EncodeToString(peer)).
		Put(h.pickEndpoint() + "/watermarks/{peer}")
	if err != nil {
		return 0, err
	}
	if err := checkStatus("put watermark", resp); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

func (h *HttpServiceClient) pickEndpoint() string {
	return h.endpoints[0]
}

func checkStatus(op string, resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		if e, ok := resp.Error().(*errorResult); ok && e.Error != "" {
			return fmt.Errorf("%s: %s: %w", op, e.Error, ErrBadRequest)
		}
		return fmt.Errorf("%s: %w", op, ErrBadRequest)
	default:
		if e, ok := resp.Error().(*errorResult); ok && e.Error != "" {
			return fmt.Errorf("%s failed, status: %d, error: %s", op, resp.StatusCode(), e.Error)
		}
		return fmt.Errorf("%s failed, status: %d", op, resp.StatusCode())
	}
}
