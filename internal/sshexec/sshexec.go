// Package sshexec runs commands on the Proxmox host over SSH. Connections are
// established per command with password authentication; host keys are not
// verified, matching the tool's usage against freshly addressed lab hosts.
package sshexec

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/majes-git/proxmox/internal/console"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
)

// Client executes commands on one remote host as a fixed user.
type Client struct {
	host     string
	port     int
	user     string
	password string
	log      *console.Logger
}

// NewClient creates a client for host. A zero port selects the default SSH
// port.
func NewClient(host string, port int, user, password string, log *console.Logger) *Client {
	if port == 0 {
		port = defaultPort
	}
	return &Client{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		log:      log,
	}
}

// Run executes command and discards its output. A non-zero exit status is an
// error naming the command.
func (c *Client) Run(ctx context.Context, command string) error {
	output, err := c.execute(ctx, command)
	if err != nil {
		return err
	}
	if output != "" {
		c.log.Debug("SSH output: %s", output)
	}
	return nil
}

// Output executes command and returns its standard output.
func (c *Client) Output(ctx context.Context, command string) (string, error) {
	return c.execute(ctx, command)
}

func (c *Client) execute(ctx context.Context, command string) (string, error) {
	c.log.Debug("Run: ssh -p %d %s@%s %s", c.port, c.user, c.host, command)

	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open SSH session on %s: %w", c.host, err)
	}
	defer session.Close()

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr
	if err := session.Run(command); err != nil {
		return "", fmt.Errorf("remote command %q failed on %s: %w (%s)",
			command, c.host, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// connect dials the host. The context bounds the TCP connection attempt.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User: c.user,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // lab hosts, no key distribution
		Timeout:         defaultDialTimeout,
	}

	addr := net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))
	dialer := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("establish SSH connection to %s: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}
