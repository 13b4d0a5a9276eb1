package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"ledgerbak/internal/backup"
)

const (
	defaultSFTPPort    = 22
	defaultSFTPTimeout = 30 * time.Second
)

// SFTPConfig holds SFTP connection parameters.
type SFTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string // optional, used alongside or instead of Password
	KnownHostsPath string // optional; host keys are not verified when empty
	RemotePath     string // destination directory on the server
	Timeout        time.Duration
}

// dialFunc opens an SFTP session. The returned closer tears down the
// underlying transport.
type dialFunc func(ctx context.Context) (*sftp.Client, io.Closer, error)

// SFTPProvider uploads snapshots over SFTP. Every Store opens its own
// connection (connect, upload, disconnect). There is no resume and no retry;
// a transport error fails the call.
type SFTPProvider struct {
	cfg  SFTPConfig
	dial dialFunc
}

// NewSFTPProvider validates cfg and prepares the SSH client configuration.
// No connection is made until Store or ValidateSetup.
func NewSFTPProvider(cfg SFTPConfig) (*SFTPProvider, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("sftp storage requires host to be set")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("sftp storage requires username to be set")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultSFTPPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSFTPTimeout
	}

	sshConfig, err := newSSHClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	p := &SFTPProvider{cfg: cfg}
	p.dial = func(ctx context.Context) (*sftp.Client, io.Closer, error) {
		return dialSFTP(ctx, cfg, sshConfig)
	}
	return p, nil
}

func newSSHClientConfig(cfg SFTPConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.PrivateKeyPath != "" {
		keyData, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp storage requires password or private_key_path to be set")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}, nil
}

func dialSFTP(ctx context.Context, cfg SFTPConfig, sshConfig *ssh.ClientConfig) (*sftp.Client, io.Closer, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("starting sftp session: %w", err)
	}
	return client, sshClient, nil
}

// Store uploads r to <remote_path>/<name>. The upload goes to a ".part" file
// first and is renamed into place once complete.
func (p *SFTPProvider) Store(ctx context.Context, r io.Reader, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, closer, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", backup.ErrStorageUnavailable, err)
	}
	defer closer.Close()
	defer client.Close()

	// Tear the connection down if ctx ends mid-transfer.
	stop := context.AfterFunc(ctx, func() { closer.Close() })
	defer stop()

	if err := p.upload(client, r, name); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", backup.ErrStorageUnavailable, err)
	}
	return nil
}

func (p *SFTPProvider) upload(client *sftp.Client, r io.Reader, name string) error {
	destPath := path.Join(p.cfg.RemotePath, name)
	partPath := destPath + ".part"

	if err := client.MkdirAll(path.Dir(destPath)); err != nil {
		return fmt.Errorf("creating remote directory: %w", err)
	}

	f, err := client.Create(partPath)
	if err != nil {
		return fmt.Errorf("creating remote file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		client.Remove(partPath)
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		client.Remove(partPath)
		return fmt.Errorf("closing remote file: %w", err)
	}

	if err := client.PosixRename(partPath, destPath); err != nil {
		// Servers without the posix-rename extension fall back to plain rename,
		// which fails when destPath exists.
		if err := client.Rename(partPath, destPath); err != nil {
			client.Remove(partPath)
			return fmt.Errorf("renaming remote file: %w", err)
		}
	}
	return nil
}

// ValidateSetup connects, ensures the remote directory exists and checks it
// is a directory.
func (p *SFTPProvider) ValidateSetup(ctx context.Context) error {
	client, closer, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", backup.ErrStorageUnavailable, err)
	}
	defer closer.Close()
	defer client.Close()

	dir := p.cfg.RemotePath
	if dir == "" {
		dir = "."
	}
	if err := client.MkdirAll(dir); err != nil {
		return fmt.Errorf("%w: creating remote directory: %w", backup.ErrStorageUnavailable, err)
	}
	info, err := client.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: remote directory not accessible: %w", backup.ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: remote path is not a directory: %s", backup.ErrStorageUnavailable, dir)
	}
	return nil
}

// Compile-time check that SFTPProvider implements backup.StorageProvider
var _ backup.StorageProvider = (*SFTPProvider)(nil)
