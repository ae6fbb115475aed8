package fetcher

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// miniFTPServer answers the commands the jlaffaye client sends for an
// anonymous RETR or NLST over EPSV. Anything else gets a 502, which the
// client treats as an unsupported FEAT.
type miniFTPServer struct {
	listener net.Listener
	files    map[string]string // path -> content
	wg       sync.WaitGroup
}

func newMiniFTPServer(t *testing.T, files map[string]string) *miniFTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &miniFTPServer{listener: ln, files: files}
	s.wg.Add(1)
	go s.serve()
	return s
}

func (s *miniFTPServer) addr() string {
	return s.listener.Addr().String()
}

func (s *miniFTPServer) close() {
	s.listener.Close() //nolint:errcheck
	s.wg.Wait()
}

func (s *miniFTPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// listing returns the entries directly under dir.
func (s *miniFTPServer) listing(dir string) []string {
	dir = strings.TrimSuffix(dir, "/") + "/"
	var names []string
	for name := range s.files {
		if rest, ok := strings.CutPrefix(name, dir); ok && !strings.Contains(rest, "/") {
			names = append(names, name)
		}
	}
	return names
}

func (s *miniFTPServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()                                 //nolint:errcheck
	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)
	reply := func(format string, args ...any) {
		fmt.Fprintf(w, format+"\r\n", args...) //nolint:errcheck
		w.Flush()                              //nolint:errcheck
	}

	// send opens the pending data connection, writes body and closes it.
	var data net.Listener
	send := func(body func(io.Writer)) {
		defer func() {
			data.Close() //nolint:errcheck
			data = nil
		}()
		reply("150 Opening data connection")
		dc, err := data.Accept()
		if err != nil {
			reply("425 Can't open data connection")
			return
		}
		body(dc)
		dc.Close() //nolint:errcheck
		reply("226 Transfer complete")
	}

	reply("220 Mini FTP Server ready")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		cmd = strings.ToUpper(cmd)

		switch cmd {
		case "USER":
			reply("230 User logged in")
		case "TYPE":
			reply("200 Type set to %s", arg)
		case "EPSV":
			if data, err = net.Listen("tcp", "127.0.0.1:0"); err != nil {
				reply("425 Can't open data connection")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", data.Addr().(*net.TCPAddr).Port)
		case "RETR", "NLST":
			if data == nil {
				reply("425 Use EPSV first")
				continue
			}
			if cmd == "NLST" {
				send(func(dc io.Writer) {
					for _, name := range s.listing(arg) {
						io.WriteString(dc, name+"\r\n") //nolint:errcheck
					}
				})
				continue
			}
			content, ok := s.files[arg]
			if !ok {
				data.Close() //nolint:errcheck
				data = nil
				reply("550 File not found")
				continue
			}
			send(func(dc io.Writer) { io.WriteString(dc, content) }) //nolint:errcheck
		case "QUIT":
			reply("221 Goodbye")
			return
		default:
			reply("502 Command not implemented")
		}
	}
}
