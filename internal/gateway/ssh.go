// Package gateway serves lab device terminals over SSH. The SSH username
// picks the device; every session channel gets its own terminal tab.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/console"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/session"
	"golang.org/x/crypto/ssh"
)

// Tabs opens and closes terminal tabs. *app.Lab implements it.
type Tabs interface {
	OpenTab(device string) (*app.Tab, error)
	CloseTab(id string) error
}

// Config locates the gateway's keys.
type Config struct {
	ListenAddr     string
	HostKeyPath    string
	AuthorizedKeys string
}

// Server is the SSH front-end.
type Server struct {
	cfg     Config
	tabs    Tabs
	allowed map[string]bool
	ssh     *ssh.ServerConfig
	wg      sync.WaitGroup
}

// New loads the authorized keys and host key. A missing host key is
// generated and written to HostKeyPath.
func New(cfg Config, tabs Tabs) (*Server, error) {
	allowed, err := loadAuthorizedKeys(cfg.AuthorizedKeys)
	if err != nil {
		return nil, fmt.Errorf("load authorized keys: %w", err)
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("authorized keys file %s contained no usable keys", cfg.AuthorizedKeys)
	}
	signer, err := loadHostSigner(cfg.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load host key: %w", err)
	}

	s := &Server{cfg: cfg, tabs: tabs, allowed: allowed}
	s.ssh = &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			fp := ssh.FingerprintSHA256(key)
			if s.allowed[fp] {
				return &ssh.Permissions{Extensions: map[string]string{"fingerprint": fp}}, nil
			}
			return nil, fmt.Errorf("unauthorized key %s", fp)
		},
	}
	s.ssh.AddHostKey(signer)
	return s, nil
}

// ListenAndServe listens on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then waits for open
// connections to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log.Info("SSH gateway listening", "addr", ln.Addr().String())
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return err
			}
			log.Warn("Accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.ssh)
	if err != nil {
		log.Debug("SSH handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	device := strings.TrimSpace(sshConn.User())
	log.Info("SSH connection", "remote", conn.RemoteAddr().String(), "device", device,
		"fingerprint", sshConn.Permissions.Extensions["fingerprint"])

	// Closing the connection ends every channel's console.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sshConn.Close()
		case <-done:
		}
	}()

	var wg sync.WaitGroup
	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only session channels supported")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleSession(ctx, newChannel, device)
		}()
	}
	wg.Wait()
}

type execRequest struct {
	Command string
}

type ptyRequest struct {
	Term    string
	Columns uint32
	Rows    uint32
	Width   uint32
	Height  uint32
	Modes   string
}

type windowChange struct {
	Columns uint32
	Rows    uint32
	Width   uint32
	Height  uint32
}

func (s *Server) handleSession(ctx context.Context, newChannel ssh.NewChannel, device string) {
	channel, requests, err := newChannel.Accept()
	if err != nil {
		log.Warn("Accept channel failed", "error", err)
		return
	}
	defer channel.Close()

	var once sync.Once
	finish := func(status uint32) {
		once.Do(func() {
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{Status: status}))
			_ = channel.Close()
		})
	}

	var (
		cons       *console.Console
		cols, rows uint32
	)
	for req := range requests {
		switch req.Type {
		case "pty-req":
			var p ptyRequest
			if err := ssh.Unmarshal(req.Payload, &p); err == nil {
				cols, rows = p.Columns, p.Rows
			}
			_ = req.Reply(true, nil)
		case "window-change":
			var wc windowChange
			if err := ssh.Unmarshal(req.Payload, &wc); err == nil {
				cols, rows = wc.Columns, wc.Rows
				if cons != nil {
					_ = cons.SetSize(int(cols), int(rows))
				}
			}
			_ = req.Reply(true, nil)
		case "env":
			_ = req.Reply(true, nil)
		case "shell":
			tab, err := s.tabs.OpenTab(device)
			if err != nil {
				_ = req.Reply(false, nil)
				fmt.Fprintf(channel.Stderr(), "labconsole: %v\r\n", err)
				finish(1)
				continue
			}
			_ = req.Reply(true, nil)
			cons = console.New(channel, channel, tab.Session)
			if cols > 0 && rows > 0 {
				_ = cons.SetSize(int(cols), int(rows))
			}
			go func(c *console.Console) {
				defer s.tabs.CloseTab(tab.ID)
				if err := c.Run(ctx); err != nil {
					log.Debug("Console ended", "tab", tab.ID, "error", err)
				}
				finish(0)
			}(cons)
		case "exec":
			var ex execRequest
			if err := ssh.Unmarshal(req.Payload, &ex); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func() {
				finish(s.exec(ctx, channel, device, ex.Command))
			}()
		default:
			_ = req.Reply(false, nil)
		}
	}
}

// exec runs each line of command on a fresh tab and writes the device
// output. The status is 1 if anything failed.
func (s *Server) exec(ctx context.Context, channel ssh.Channel, device, command string) uint32 {
	tab, err := s.tabs.OpenTab(device)
	if err != nil {
		fmt.Fprintf(channel.Stderr(), "labconsole: %v\n", err)
		return 1
	}
	defer s.tabs.CloseTab(tab.ID)

	var status uint32
	for _, line := range strings.Split(command, ";") {
		if err := tab.Session.Submit(ctx, line); err != nil {
			status = 1
		}
	}
	for _, l := range tab.Session.Lines() {
		switch l.Kind {
		case session.KindOutput:
			fmt.Fprintln(channel, l.Text)
		case session.KindError:
			fmt.Fprintln(channel.Stderr(), l.Text)
			status = 1
		}
	}
	return status
}

func loadAuthorizedKeys(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("parse authorized key: %w", err)
		}
		allowed[ssh.FingerprintSHA256(pub)] = true
	}
	return allowed, scanner.Err()
}

func loadHostSigner(path string) (ssh.Signer, error) {
	if path == "" {
		log.Warn("No host key configured; using an ephemeral key")
		return generateHostKey("")
	}
	data, err := os.ReadFile(path)
	if err == nil {
		return ssh.ParsePrivateKey(data)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	log.Info("Generating SSH host key", "path", path)
	return generateHostKey(path)
}

// generateHostKey creates an ed25519 key, saving it to path when set.
func generateHostKey(path string) (ssh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	if path != "" {
		block, err := ssh.MarshalPrivateKey(priv, "labconsole")
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
			return nil, fmt.Errorf("write host key: %w", err)
		}
	}
	return ssh.NewSignerFromKey(priv)
}
