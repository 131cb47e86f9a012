// Package ingestor receives key batches over the lumberjack v2 protocol.
//
// Every event is a JSON object carrying keys in one of three fields:
//
//	{"key": 42}                       a single key (number or string)
//	{"keys": [3, "10.0.0.1", 7]}      a list of keys
//	{"message": "5 10.0.0.2 9"}       whitespace separated keys, as shipped by log forwarders
//
// Keys are unsigned integers or dotted IPv4 addresses. Integers above 2^53
// must be sent as strings because JSON numbers are decoded as float64.
package ingestor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	lj "github.com/elastic/go-lumber/lj"
	srv2 "github.com/elastic/go-lumber/server/v2"
	"github.com/ingla/pram/keyio"
	"github.com/ingla/pram/pools"
)

// maxExactFloat is the largest integer a float64 holds exactly
const maxExactFloat = 1 << 53

// KeyBatch is everything decoded from the batches drained by one read
type KeyBatch struct {
	Keys     []uint64
	Events   int
	Rejected int
}

// --- TCP Ingestor using go-lumber v2 ---

type TCPIngestor struct {
	listener    net.Listener
	readTimeout time.Duration // for server
	events      chan *lj.Batch
	server      *srv2.Server
}

func NewTCPIngestor(addr string, readTimeout time.Duration) (*TCPIngestor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &TCPIngestor{
		listener:    ln,
		readTimeout: readTimeout,
		events:      make(chan *lj.Batch, 1000),
	}, nil
}

// Addr is the address the ingestor listens on
func (ing *TCPIngestor) Addr() net.Addr {
	return ing.listener.Addr()
}

// Accept starts the lumberjack v2 Server.
func (ing *TCPIngestor) Accept() error {
	srv, err := srv2.NewWithListener(
		ing.listener,
		srv2.Timeout(ing.readTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create lumberjack server: %w", err)
	}
	ing.server = srv

	// Pull batches off ReceiveChan and ack them.
	go func() {
		for batch := range ing.server.ReceiveChan() {
			ing.events <- batch
			batch.ACK()
		}
		close(ing.events)
	}()

	return nil
}

func parseValue(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case float64:
		if x < 0 || x != math.Trunc(x) || x >= maxExactFloat {
			return 0, fmt.Errorf("key %v is not an exact unsigned integer", x)
		}
		return uint64(x), nil
	case string:
		k, _, err := keyio.ParseKey(x)
		return k, err
	default:
		return 0, fmt.Errorf("unsupported key type %T", v)
	}
}

// parseEvent decodes the keys of one event. An event with any invalid key is
// rejected as a whole.
func parseEvent(evt map[string]interface{}) ([]uint64, error) {
	var keys []uint64
	switch {
	case evt["key"] != nil:
		k, err := parseValue(evt["key"])
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	case evt["keys"] != nil:
		list, ok := evt["keys"].([]interface{})
		if !ok {
			return nil, errors.New("keys field is not a list")
		}
		for _, v := range list {
			k, err := parseValue(v)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
	case evt["message"] != nil:
		msg, ok := evt["message"].(string)
		if !ok {
			return nil, errors.New("message field is not a string")
		}
		for _, field := range strings.Fields(msg) {
			k, _, err := keyio.ParseKey(field)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
	default:
		return nil, errors.New("missing key, keys or message field")
	}
	return keys, nil
}

func (b *KeyBatch) add(batch *lj.Batch) {
	for _, evt := range batch.Events {
		b.Events++
		m, ok := evt.(map[string]interface{})
		if !ok {
			b.Rejected++
			continue
		}
		keys, err := parseEvent(m)
		if err != nil {
			b.Rejected++
			continue
		}
		b.Keys = append(b.Keys, keys...)
	}
}

// ReadBatch drains every batch received so far without blocking.
func (ing *TCPIngestor) ReadBatch() (KeyBatch, error) {
	var out KeyBatch

	for {
		select {
		case batch, ok := <-ing.events:
			if !ok {
				return out, nil
			}
			out.add(batch)
		default:
			// Channel is empty, return what we have
			return out, nil
		}
	}
}

// NextBatch blocks until at least one batch arrives, then drains the rest
// like ReadBatch. It returns ErrClosed once the server is gone. The keys come
// from pools.Pools and may be returned there once processed.
func (ing *TCPIngestor) NextBatch(ctx context.Context) (KeyBatch, error) {
	select {
	case <-ctx.Done():
		return KeyBatch{}, ctx.Err()
	case batch, ok := <-ing.events:
		if !ok {
			return KeyBatch{}, ErrClosed
		}
		out := KeyBatch{Keys: pools.Pools.GetKeySlice()}
		out.add(batch)
		rest, err := ing.ReadBatch()
		out.Keys = append(out.Keys, rest.Keys...)
		out.Events += rest.Events
		out.Rejected += rest.Rejected
		return out, err
	}
}

// ErrClosed is returned by NextBatch after the server shut down
var ErrClosed = errors.New("ingestor closed")

// Close shuts down the server and listener.
func (ing *TCPIngestor) Close() error {
	if ing.server != nil {
		ing.server.Close()
	}
	return ing.listener.Close()
}
