package oauth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/llm-gate/llm-gate/internal/logging"
)

// flowTimeout bounds the whole login from URL open to callback.
const flowTimeout = 5 * time.Minute

// successHTML is rendered on the callback landing page; it closes the tab
// after a few seconds.
const successHTML = `<!DOCTYPE html>
<html>
<head><title>Login complete</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h2>Login complete</h2>
<p>You can return to the terminal. This window closes itself shortly.</p>
<script>setTimeout(function(){ window.close(); }, 4000);</script>
</body>
</html>`

const errorHTML = `<!DOCTYPE html>
<html>
<head><title>Login failed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h2>Login failed</h2>
<p>%s</p>
</body>
</html>`

// Callback is what the provider redirect delivered.
type Callback struct {
	Code  string
	State string
}

// CallbackServer is a one-shot loopback HTTP listener for one login flow.
type CallbackServer struct {
	port   int
	path   string
	srv    *http.Server
	result chan Callback
	errs   chan error
}

// NewCallbackServer binds the loopback listener. Whatever held the port
// before is killed best effort first; desktop shells frequently leave a
// stale login server behind.
func NewCallbackServer(port int, path string) (*CallbackServer, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		killPort(port)
		time.Sleep(200 * time.Millisecond)
		listener, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return nil, fmt.Errorf("callback port %d: %w", port, err)
		}
	}

	cs := &CallbackServer{
		port:   port,
		path:   path,
		result: make(chan Callback, 1),
		errs:   make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, cs.handle)
	cs.srv = &http.Server{Handler: mux}
	go func() {
		if err := cs.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case cs.errs <- err:
			default:
			}
		}
	}()
	return cs, nil
}

func (cs *CallbackServer) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, errorHTML, errParam+" "+desc)
		select {
		case cs.errs <- fmt.Errorf("authorization denied: %s %s", errParam, desc):
		default:
		}
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, successHTML)
	select {
	case cs.result <- Callback{Code: code, State: q.Get("state")}:
	default:
	}
}

// Wait blocks until the callback arrives, the flow times out, or ctx is
// cancelled.
func (cs *CallbackServer) Wait(ctx context.Context) (Callback, error) {
	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()
	select {
	case cb := <-cs.result:
		return cb, nil
	case err := <-cs.errs:
		return Callback{}, err
	case <-ctx.Done():
		return Callback{}, fmt.Errorf("login timed out waiting for callback")
	}
}

// Close shuts the listener down.
func (cs *CallbackServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = cs.srv.Shutdown(ctx)
}

// RedirectURL returns the loopback redirect for this server.
func (cs *CallbackServer) RedirectURL() string {
	return fmt.Sprintf("http://localhost:%d%s", cs.port, cs.path)
}

// killPort terminates whatever process listens on the port. Best effort;
// failures only mean the bind retry will fail too.
func killPort(port int) {
	p := strconv.Itoa(port)
	switch runtime.GOOS {
	case "windows":
		out, err := exec.Command("netstat", "-ano").Output()
		if err != nil {
			return
		}
		for _, line := range strings.Split(string(out), "\n") {
			if !strings.Contains(line, ":"+p+" ") || !strings.Contains(line, "LISTENING") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) > 0 {
				_ = exec.Command("taskkill", "/F", "/PID", fields[len(fields)-1]).Run()
			}
		}
	default:
		out, err := exec.Command("lsof", "-ti", ":"+p).Output()
		if err != nil {
			_ = exec.Command("fuser", "-k", p+"/tcp").Run()
			return
		}
		for _, pid := range strings.Fields(string(out)) {
			logging.Debugf("killing pid %s holding port %d", pid, port)
			_ = exec.Command("kill", pid).Run()
		}
	}
}
