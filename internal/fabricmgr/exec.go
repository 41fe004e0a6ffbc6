package fabricmgr

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Executor runs one shell command on the fabric-management host.
type Executor interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// SSHExecutor runs commands over a fresh SSH connection per call.
type SSHExecutor struct {
	addr    string
	config  *ssh.ClientConfig
	timeout time.Duration
	logger  *zap.Logger

	// dial is the function used to establish SSH connections.
	// Defaults to ssh.Dial; overridden in tests.
	dial func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

var _ Executor = (*SSHExecutor)(nil)

// NewSSHExecutor builds an executor from cfg, loading the private key and
// known_hosts file it names.
func NewSSHExecutor(cfg Config, logger *zap.Logger) (*SSHExecutor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("fabric host is not configured")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", cfg.KeyFile, err)
	}

	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec // G106: opt-in via known_hosts
	if cfg.KnownHosts != "" {
		hostKey, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}

	return &SSHExecutor{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKey,
			Timeout:         30 * time.Second,
		},
		timeout: cfg.Timeout,
		logger:  logger,
		dial:    ssh.Dial,
	}, nil
}

// Run executes cmd and returns its stdout. A non-zero exit status is an error.
func (e *SSHExecutor) Run(ctx context.Context, cmd string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	client, err := e.dial("tcp", e.addr, e.config)
	if err != nil {
		return "", fmt.Errorf("ssh dial %s: %w", e.addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session %s: %w", e.addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	e.logger.Debug("running fabric command", zap.String("addr", e.addr), zap.String("cmd", cmd))

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		client.Close()
		return "", fmt.Errorf("run %q on %s: %w", cmd, e.addr, ctx.Err())
	}
	if err != nil {
		return stdout.String(), fmt.Errorf("run %q on %s: %w: %s", cmd, e.addr, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
