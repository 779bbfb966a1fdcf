package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	xssh "golang.org/x/crypto/ssh"
)

// Target is a remote directory written as user@host[:port]:/dir.
type Target struct {
	User string
	Host string
	Port int
	Dir  string
}

// ParseTarget parses user@host[:port]:/dir. The user defaults to $USER and
// the port to 22.
func ParseTarget(s string) (Target, error) {
	t := Target{Port: 22}
	rest := s
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		t.User, rest = rest[:i], rest[i+1:]
	}
	parts := strings.SplitN(rest, ":", 3)
	switch len(parts) {
	case 2:
		t.Host, t.Dir = parts[0], parts[1]
	case 3:
		port, err := strconv.Atoi(parts[1])
		if err != nil || port <= 0 || port > 65535 {
			return Target{}, fmt.Errorf("invalid port in %q", s)
		}
		t.Host, t.Port, t.Dir = parts[0], port, parts[2]
	default:
		return Target{}, fmt.Errorf("expected user@host[:port]:/dir, got %q", s)
	}
	if t.Host == "" || t.Dir == "" {
		return Target{}, fmt.Errorf("expected user@host[:port]:/dir, got %q", s)
	}
	if t.User == "" {
		t.User = currentUser()
	}
	return t, nil
}

func (t Target) Addr() string { return net.JoinHostPort(t.Host, strconv.Itoa(t.Port)) }

func (t Target) String() string { return fmt.Sprintf("%s@%s:%s", t.User, t.Addr(), t.Dir) }

type Client struct {
	Addr       string
	User       string
	Signer     xssh.Signer
	KnownHosts xssh.HostKeyCallback
	Timeout    time.Duration
}

func (c *Client) makeConfig() (*xssh.ClientConfig, error) {
	if c.Signer == nil {
		return nil, errors.New("ssh: signer required")
	}
	if c.KnownHosts == nil {
		return nil, errors.New("ssh: host key callback required")
	}
	return &xssh.ClientConfig{
		User:            c.User,
		Auth:            []xssh.AuthMethod{xssh.PublicKeys(c.Signer)},
		HostKeyCallback: c.KnownHosts,
		Timeout:         c.Timeout,
	}, nil
}

// Dial establishes an SSH connection using the provided client configuration.
// The caller is responsible for closing the returned client.
func Dial(ctx context.Context, c *Client) (*xssh.Client, error) {
	cfg, err := c.makeConfig()
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := xssh.NewClientConn(conn, c.Addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", c.Addr, err)
	}
	conn.SetDeadline(time.Time{})
	return xssh.NewClient(sshConn, chans, reqs), nil
}
