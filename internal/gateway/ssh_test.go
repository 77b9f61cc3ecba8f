package gateway

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/labtest"
	"golang.org/x/crypto/ssh"
)

func newKey(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}
	return signer
}

type gatewayFixture struct {
	addr    string
	lab     *app.Lab
	client  ssh.Signer
	hostKey string
}

func startGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	srv, _ := labtest.NewServer()
	t.Cleanup(srv.Close)
	client, err := labclient.New(labclient.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	lab, err := app.Load(context.Background(), client, "1", app.WithoutTerminals())
	if err != nil {
		t.Fatalf("load lab: %v", err)
	}
	t.Cleanup(lab.Close)

	dir := t.TempDir()
	userKey := newKey(t)
	authorized := filepath.Join(dir, "authorized_keys")
	content := "# gateway users\n\n" + string(ssh.MarshalAuthorizedKey(userKey.PublicKey()))
	if err := os.WriteFile(authorized, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	hostKey := filepath.Join(dir, "keys", "host_ed25519")

	gw, err := New(Config{HostKeyPath: hostKey, AuthorizedKeys: authorized}, lab)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &gatewayFixture{addr: ln.Addr().String(), lab: lab, client: userKey, hostKey: hostKey}
}

func (f *gatewayFixture) dial(t *testing.T, user string, key ssh.Signer) (*ssh.Client, error) {
	t.Helper()
	return ssh.Dial("tcp", f.addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(key)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func (f *gatewayFixture) session(t *testing.T, user string) *ssh.Session {
	t.Helper()
	c, err := f.dial(t, user, f.client)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	s, err := c.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func exitStatus(err error) int {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	if err != nil {
		return -1
	}
	return 0
}

func TestHostKeyIsPersisted(t *testing.T) {
	f := startGateway(t)
	data, err := os.ReadFile(f.hostKey)
	if err != nil {
		t.Fatalf("host key not written: %v", err)
	}
	if _, err := ssh.ParsePrivateKey(data); err != nil {
		t.Errorf("host key unreadable: %v", err)
	}
}

func TestExec(t *testing.T) {
	f := startGateway(t)

	s := f.session(t, "R1")
	out, err := s.Output("ping 1.1.1.1")
	if err != nil {
		t.Fatalf("exec error = %v", err)
	}
	if !bytes.Contains(out, []byte("Success rate is 100 percent")) {
		t.Errorf("output = %q", out)
	}
}

func TestExecReportsDeviceErrors(t *testing.T) {
	f := startGateway(t)

	s := f.session(t, "R1")
	var stderr bytes.Buffer
	s.Stderr = &stderr
	err := s.Run("show run")
	if got := exitStatus(err); got != 1 {
		t.Errorf("exit status = %d, want 1", got)
	}
	if !bytes.Contains(stderr.Bytes(), []byte("% Access denied")) {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestExecSequence(t *testing.T) {
	f := startGateway(t)

	s := f.session(t, "R2")
	out, err := s.Output("enable;cisco;show ip interface brief")
	if err != nil {
		t.Fatalf("exec error = %v", err)
	}
	if !bytes.Contains(out, []byte("10.0.12.2")) {
		t.Errorf("output = %q", out)
	}
}

func TestUnknownDevice(t *testing.T) {
	f := startGateway(t)

	s := f.session(t, "R9")
	err := s.Run("show run")
	if got := exitStatus(err); got != 1 {
		t.Errorf("exit status = %d, want 1", got)
	}
}

func TestShell(t *testing.T) {
	f := startGateway(t)

	s := f.session(t, "R1")
	var stdout bytes.Buffer
	s.Stdout = &stdout
	stdin, err := s.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Shell(); err != nil {
		t.Fatalf("shell: %v", err)
	}
	if _, err := stdin.Write([]byte("ping 1.1.1.1\n")); err != nil {
		t.Fatal(err)
	}
	stdin.Close()
	if err := s.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if !bytes.Contains(stdout.Bytes(), []byte("R1> ping 1.1.1.1\r\n")) {
		t.Errorf("stdout = %q", stdout.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.lab.Tabs()) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := len(f.lab.Tabs()); n != 0 {
		t.Errorf("%d tabs left open", n)
	}
}

func TestUnauthorizedKey(t *testing.T) {
	f := startGateway(t)
	if c, err := f.dial(t, "R1", newKey(t)); err == nil {
		c.Close()
		t.Fatal("expected handshake to fail for an unknown key")
	}
}

func TestEmptyAuthorizedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authorized_keys")
	os.WriteFile(path, []byte("# nobody\n"), 0o600)
	if _, err := New(Config{AuthorizedKeys: path}, nil); err == nil {
		t.Error("expected error for empty authorized keys")
	}
}
