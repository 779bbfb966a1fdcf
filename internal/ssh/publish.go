package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	xssh "golang.org/x/crypto/ssh"
)

const defaultTimeout = 30 * time.Second

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// Upload copies local files into remoteDir, creating it if needed, and
// returns the remote paths in order.
func Upload(ctx context.Context, sf *sftp.Client, remoteDir string, localPaths ...string) ([]string, error) {
	if err := sf.MkdirAll(remoteDir); err != nil {
		return nil, fmt.Errorf("mkdir remote: %w", err)
	}
	var written []string
	for _, local := range localPaths {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		remote := path.Join(remoteDir, filepath.Base(local))
		if err := pushFile(sf, local, remote); err != nil {
			return written, err
		}
		written = append(written, remote)
	}
	return written, nil
}

func pushFile(sf *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local: %w", err)
	}
	defer src.Close()
	dst, err := sf.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote %s: %w", remotePath, err)
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		return fmt.Errorf("copy %s: %w", localPath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close remote %s: %w", remotePath, err)
	}
	st, err := sf.Stat(remotePath)
	if err != nil {
		return fmt.Errorf("stat remote %s: %w", remotePath, err)
	}
	if st.Size() != n {
		return fmt.Errorf("remote %s has %d bytes, wrote %d", remotePath, st.Size(), n)
	}
	return nil
}

// Publisher uploads report files to a target over SFTP.
type Publisher struct {
	Target     Target
	Signer     xssh.Signer
	KnownHosts xssh.HostKeyCallback
	Log        zerolog.Logger
}

// Publish dials the target once and uploads every file.
func (p *Publisher) Publish(ctx context.Context, localPaths ...string) ([]string, error) {
	cli, err := Dial(ctx, &Client{
		Addr:       p.Target.Addr(),
		User:       p.Target.User,
		Signer:     p.Signer,
		KnownHosts: p.KnownHosts,
		Timeout:    defaultTimeout,
	})
	if err != nil {
		return nil, err
	}
	defer cli.Close()
	sf, err := sftp.NewClient(cli)
	if err != nil {
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	defer sf.Close()
	written, err := Upload(ctx, sf, p.Target.Dir, localPaths...)
	for _, w := range written {
		p.Log.Info().Str("target", p.Target.Host).Str("path", w).Msg("published")
	}
	return written, err
}
