// Package rpc exposes the text input protocol to the UI framework as
// JSON-RPC 2.0 over a Unix domain socket.
//
// Inbound TextInput.* method calls are routed to the session controller;
// outbound TextInputClient.* notifications flow back over the same
// connection. One framework client is active at a time: the most recently
// connected peer receives notifications, and its disconnect detaches it.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/jsonrpc2"

	"textinputd/internal/textinput"
)

// Application error codes carried in error responses. The Message field of
// the response carries the protocol's error name ("Bad Arguments",
// "Internal Consistency Error"); Data carries the detail text.
const (
	CodeBadArguments        int64 = -32001
	CodeInternalConsistency int64 = -32002
)

// Config configures the RPC server.
type Config struct {
	// SocketPath is the Unix socket to listen on.
	SocketPath string

	// RequireSameUser rejects connections from peers running as a
	// different user. Only enforced on platforms with SO_PEERCRED.
	RequireSameUser bool
}

// Server accepts framework connections and bridges them to the controller.
type Server struct {
	cfg  Config
	ctrl *textinput.Controller
	log  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	active   *jsonrpc2.Conn

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewServer creates a server for the given controller.
func NewServer(cfg Config, ctrl *textinput.Controller, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		ctrl:   ctrl,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins listening on the configured socket.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("rpc server listening", "socket", s.cfg.SocketPath)
	return nil
}

// Stop shuts the server down and removes the socket file.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("accept connection", "error", err)
			continue
		}

		if s.cfg.RequireSameUser {
			same, err := verifySameUser(conn)
			if err != nil || !same {
				s.log.Warn("rejecting connection from foreign peer", "error", err)
				conn.Close()
				continue
			}
		}

		s.serveConn(conn)
	}
}

// serveConn wires one framework connection to the controller and binds it
// as the notification target.
func (s *Server) serveConn(netConn net.Conn) {
	stream := jsonrpc2.NewBufferedStream(netConn, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(s.ctx, stream, s.handler())

	s.mu.Lock()
	s.active = conn
	s.mu.Unlock()
	s.ctrl.SetNotifier(connNotifier{conn})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-conn.DisconnectNotify()

		s.mu.Lock()
		current := s.active == conn
		if current {
			s.active = nil
		}
		s.mu.Unlock()
		if current {
			s.ctrl.SetNotifier(nil)
		}
	}()
}

func (s *Server) handler() jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		result, err := s.ctrl.HandleMethodCall(ctx, req.Method, params)
		if err != nil {
			return nil, wireError(err)
		}
		return result, nil
	})
}

// wireError maps controller errors onto jsonrpc2 error responses.
func wireError(err error) error {
	var methodErr *textinput.MethodError
	if errors.As(err, &methodErr) {
		code := CodeBadArguments
		if methodErr.Code == textinput.ErrorCodeInternalConsistency {
			code = CodeInternalConsistency
		}
		rpcErr := &jsonrpc2.Error{Code: code, Message: methodErr.Code}
		rpcErr.SetError(methodErr.Message)
		return rpcErr
	}
	if errors.Is(err, textinput.ErrNotImplemented) {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	}
	return err
}

// connNotifier adapts a jsonrpc2 connection to the controller's Notifier.
type connNotifier struct {
	conn *jsonrpc2.Conn
}

func (n connNotifier) Notify(ctx context.Context, method string, params any) error {
	return n.conn.Notify(ctx, method, params)
}
