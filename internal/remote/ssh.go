// Package remote runs shell scripts on the router over SSH.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/zinin/homeops-bot/internal/shell"
)

// DialTimeout bounds connection setup only; a started command runs until it exits.
const DialTimeout = 5 * time.Second

type Options struct {
	Host       string
	Port       int
	User       string
	Password   string
	KeyFile    string
	KnownHosts string
}

// SSH opens a fresh connection for every Run.
type SSH struct {
	addr   string
	config *ssh.ClientConfig
}

func NewSSH(opts Options) (*SSH, error) {
	if opts.Host == "" {
		return nil, errors.New("ssh host is not set")
	}
	if opts.Port == 0 {
		opts.Port = 22
	}

	var auth []ssh.AuthMethod
	if opts.KeyFile != "" {
		key, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if opts.Password != "" {
		auth = append(auth, ssh.Password(opts.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh needs a password or a key file")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if opts.KnownHosts != "" {
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKey = cb
	} else {
		slog.Warn("SSH host key verification disabled, set openwrt.known_hosts to enable", "host", opts.Host)
	}

	return &SSH{
		addr: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		config: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         DialTimeout,
		},
	}, nil
}

// Run executes script through the login shell on the remote side.
// A non-zero exit status is reported in the result, not as an error.
func (s *SSH) Run(ctx context.Context, script string) (*shell.Result, error) {
	dialer := net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", s.addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, s.addr, s.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", s.addr, err)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(script)

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &shell.Result{Output: string(output), ExitCode: exitErr.ExitStatus()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ssh run: %w", err)
	}
	return &shell.Result{Output: string(output)}, nil
}
