package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPConnector dials SFTP sources for sync jobs.
type SFTPConnector struct {
	dialTimeout time.Duration
	log         *slog.Logger
}

func NewSFTPConnector(dialTimeout time.Duration, log *slog.Logger) *SFTPConnector {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &SFTPConnector{dialTimeout: dialTimeout, log: log}
}

func (c *SFTPConnector) Connect(ctx context.Context, cfg SourceConfig) (Source, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	sshCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: load known_hosts when sources provide host keys
		Timeout:         c.dialTimeout,
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("opening sftp session: %w", err)
	}

	c.log.Info("sftp connected", "host", cfg.Host, "port", cfg.Port)
	return &sftpSource{ssh: sshClient, client: client, log: c.log}, nil
}

type sftpSource struct {
	ssh    *ssh.Client
	client *sftp.Client
	log    *slog.Logger
}

func (s *sftpSource) List(_ context.Context, dir, pattern string) ([]string, error) {
	entries, err := s.client.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if pattern != "" {
			ok, err := path.Match(pattern, e.Name())
			if err != nil || !ok {
				continue
			}
		}
		files = append(files, path.Join(dir, e.Name()))
	}
	s.log.Debug("sftp listing complete", "dir", dir, "pattern", pattern, "files", len(files))
	return files, nil
}

func (s *sftpSource) Size(_ context.Context, p string) (int64, error) {
	info, err := s.client.Stat(p)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", p, err)
	}
	return info.Size(), nil
}

func (s *sftpSource) Download(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := s.client.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	return f, nil
}

func (s *sftpSource) Close() error {
	if err := s.client.Close(); err != nil {
		s.ssh.Close()
		return err
	}
	return s.ssh.Close()
}
