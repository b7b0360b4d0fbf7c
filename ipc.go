package main

import (
  "bufio"
  "context"
  "errors"
  "fmt"
  "log"
  "net"
  "net/http"
  "os"
  "strings"
  "time"

  "github.com/coder/websocket"
)

const (
  SourceIPC Source = "ipc"

  defaultSocketPath = "/tmp/kioskd.sock"
  defaultListenIP   = "127.0.0.1"
  defaultListenPort = 6569
  defaultDaemonIP   = "localhost"
  ipcReplyTimeout   = 3 * time.Second
)

// IPCServer takes command lines over a unix socket, TCP and a websocket.
// Each request line may hold several commands separated by commas.
type IPCServer struct {
  k    *Kiosk
  loop *Reactor

  socketPath string
  listenIP   string
  listenPort int
  wsPort     int

  uds net.Listener
  tcp net.Listener
  ws  *http.Server
}

func NewIPCServer(k *Kiosk, loop *Reactor, socketPath, listenIP string, listenPort, wsPort int) *IPCServer {
  return &IPCServer{
    k:          k,
    loop:       loop,
    socketPath: socketPath,
    listenIP:   listenIP,
    listenPort: listenPort,
    wsPort:     wsPort,
  }
}

func (s *IPCServer) Name() string { return "ipc" }

// submit runs one command on the loop and waits for its reply lines.
func (s *IPCServer) submit(line string) []string {
  if s.loop.Stopped() {
    return []string{`error="daemon ending"`}
  }
  reply := make(chan []string, 1)
  s.loop.Post(func() {
    if strings.ToLower(strings.TrimSpace(line)) == "status" {
      reply <- s.k.Status()
      return
    }
    if err := s.k.HandleCommand(line, SourceIPC); err != nil {
      reply <- []string{fmt.Sprintf("error=%q", err.Error())}
      return
    }
    reply <- []string{"ok"}
  })
  select {
  case r := <-reply:
    return r
  case <-s.loop.Done():
    return []string{`error="daemon ending"`}
  case <-time.After(ipcReplyTimeout):
    return []string{`error="timeout"`}
  }
} // func (s *IPCServer) submit(line string) []string


// verbProcessor runs each comma-separated command in turn.
func (s *IPCServer) verbProcessor(csv string) []string {
  var responses []string
  for _, part := range strings.Split(csv, ",") {
    line := strings.TrimSpace(part)
    if line == "" {
      continue
    }
    responses = append(responses, s.submit(line)...)
  }
  return responses
} // func (s *IPCServer) verbProcessor(csv string) []string


func (s *IPCServer) Start() error {
  if s.socketPath != "" {
    // a stale socket from a crashed run blocks Listen
    if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
      return fmt.Errorf("ipc remove %s: %w", s.socketPath, err)
    }
    ln, err := net.Listen("unix", s.socketPath)
    if err != nil {
      return fmt.Errorf("ipc listen %s: %w", s.socketPath, err)
    }
    os.Chmod(s.socketPath, 0660)
    s.uds = ln
    log.Printf("[ipc] listening on %s", s.socketPath)
    go s.accept(ln)
  }

  if s.listenPort > 0 {
    addr := fmt.Sprintf("%s:%d", s.listenIP, s.listenPort)
    ln, err := net.Listen("tcp", addr)
    if err != nil {
      return fmt.Errorf("ipc listen %s: %w", addr, err)
    }
    s.tcp = ln
    log.Printf("[ipc] listening on %s", addr)
    go s.accept(ln)
  }

  if s.wsPort > 0 {
    mux := http.NewServeMux()
    mux.HandleFunc("/ws", s.wsHandler)
    s.ws = &http.Server{Addr: fmt.Sprintf(":%d", s.wsPort), Handler: mux}
    go func() {
      log.Printf("[ipc] ws listening on %s (/ws)", s.ws.Addr)
      if err := s.ws.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Printf("[ipc] ws server: %v", err)
      }
    }()
  }
  return nil
} // func (s *IPCServer) Start() error


// accept hands each connection to handleConn until ln is closed.
func (s *IPCServer) accept(ln net.Listener) {
  for {
    conn, err := ln.Accept()
    if err != nil {
      if errors.Is(err, net.ErrClosed) {
        return
      }
      log.Printf("[ipc] accept: %v", err)
      continue
    }
    dbg("[ipc] client connected from %s", conn.RemoteAddr())
    go s.handleConn(conn)
  }
} // func (s *IPCServer) accept(ln net.Listener)


// handleConn reads one request line and writes the reply lines.
func (s *IPCServer) handleConn(conn net.Conn) {
  defer conn.Close()
  _ = conn.SetDeadline(time.Now().Add(2 * ipcReplyTimeout))
  scanner := bufio.NewScanner(conn)

  if scanner.Scan() {
    line := scanner.Text()
    if line != "" {
      for _, resp := range s.verbProcessor(line) {
        fmt.Fprintln(conn, resp)
      }
      log.Printf("[ipc] executed %q", line)
    }
  }

  if err := scanner.Err(); err != nil {
    log.Printf("[ipc] client %s: %v", conn.RemoteAddr(), err)
  }
} // func (s *IPCServer) handleConn(conn net.Conn)


func (s *IPCServer) wsHandler(w http.ResponseWriter, r *http.Request) {
  conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
    InsecureSkipVerify: true,
  })
  if err != nil {
    log.Printf("[ipc] ws accept: %v", err)
    return
  }
  defer conn.Close(websocket.StatusNormalClosure, "done")

  for {
    _, msg, err := conn.Read(r.Context())
    if err != nil {
      dbg("[ipc] ws read: %v", err)
      return
    }
    for _, line := range s.verbProcessor(string(msg)) {
      if err := conn.Write(r.Context(), websocket.MessageText, []byte(line)); err != nil {
        log.Printf("[ipc] ws write: %v", err)
        return
      }
    }
  }
} // func (s *IPCServer) wsHandler(w http.ResponseWriter, r *http.Request)


// Terminate closes the listeners and removes the socket file.
func (s *IPCServer) Terminate() {
  if s.uds != nil {
    s.uds.Close()
    os.Remove(s.socketPath)
    s.uds = nil
  }
  if s.tcp != nil {
    s.tcp.Close()
    s.tcp = nil
  }
  if s.ws != nil {
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    s.ws.Shutdown(ctx)
    cancel()
    s.ws = nil
  }
} // func (s *IPCServer) Terminate()


// ---- client mode ----

// verbs that take one argument
var argVerbs = map[string]bool{"open": true, "close": true, "monitor": true, "event": true}

var clientVerbs = map[string]bool{
  "open": true, "close": true, "monitor": true, "event": true,
  "status": true, "terminate": true, "shutdown": true, "shutdownnow": true,
  "exitpipresents": true, "exit": true,
}

// clientBatch turns command-line arguments into one comma-separated request.
// "open a close b" and "open a, close b" give the same batch.
func clientBatch(args []string) (string, error) {
  if len(args) == 0 {
    return "", fmt.Errorf("no client commands provided")
  }
  var toks []string
  for _, a := range args {
    toks = append(toks, strings.Fields(strings.ReplaceAll(a, ",", " "))...)
  }

  var batch []string
  for i := 0; i < len(toks); i++ {
    tok := toks[i]
    if strings.HasPrefix(tok, "/") {
      // egress lines run to the end
      batch = append(batch, strings.Join(toks[i:], " "))
      break
    }
    if !clientVerbs[tok] {
      return "", fmt.Errorf("unknown command %q", tok)
    }
    if argVerbs[tok] {
      if i+1 >= len(toks) {
        return "", fmt.Errorf("%s needs an argument", tok)
      }
      batch = append(batch, tok+" "+toks[i+1])
      i++
      continue
    }
    batch = append(batch, tok)
  }
  return strings.Join(batch, ","), nil
} // func clientBatch(args []string) (string, error)


// sendClientCommand sends cmd to a running daemon, preferring the socket
// and falling back to TCP, and writes the reply lines to stdout.
func sendClientCommand(cmd, socketPath, daemonIP string, daemonPort int) error {
  var conn net.Conn
  var err error

  if socketPath != "" {
    conn, err = net.DialTimeout("unix", socketPath, 500*time.Millisecond)
    if err != nil {
      dbg("[client] socket unusable: %v", err)
    }
  }
  if conn == nil && daemonPort > 0 {
    addr := fmt.Sprintf("%s:%d", daemonIP, daemonPort)
    conn, err = net.DialTimeout("tcp", addr, 500*time.Millisecond)
    if err != nil {
      dbg("[client] tcp unusable: %v", err)
    }
  }
  if conn == nil {
    return fmt.Errorf("no usable daemon connection")
  }
  defer conn.Close()

  _ = conn.SetDeadline(time.Now().Add(2 * ipcReplyTimeout))
  dbg("[client] sending: %q", cmd)
  if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
    return fmt.Errorf("write failed: %w", err)
  }

  scanner := bufio.NewScanner(conn)
  for scanner.Scan() {
    fmt.Println(scanner.Text())
  }
  if err := scanner.Err(); err != nil {
    return fmt.Errorf("read failed: %w", err)
  }
  return nil
} // func sendClientCommand(...)
