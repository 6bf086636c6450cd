// Package image resolves a disk image reference into a concrete path on the
// Proxmox host. Remote URLs are downloaded into a transient staging directory
// over SSH; server-local paths are verified to exist. Credentials embedded in
// a URL are split out and never appear in anything displayed or recorded.
package image

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/majes-git/proxmox/internal/console"
	"github.com/majes-git/proxmox/internal/credentials"
)

// Executor runs commands on the target host.
type Executor interface {
	Run(ctx context.Context, command string) error
	Output(ctx context.Context, command string) (string, error)
}

// ResolutionError reports an image reference that cannot be used. Ref is
// always the redacted form.
type ResolutionError struct {
	Ref    string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot load image %s: %s", e.Ref, e.Reason)
}

// Resolved is a usable image on the target host.
type Resolved struct {
	// Path is where the image lives on the host.
	Path string
	// Display is the reference safe for logs and VM provenance; it never
	// contains a password.
	Display string
	// Remote reports whether the image was downloaded.
	Remote bool

	staging string
}

// Resolver turns image references into Resolved images.
type Resolver struct {
	Exec    Executor
	Creds   credentials.Provider
	Console *console.Logger
	// HTTP performs the reachability check; http.DefaultClient when nil.
	HTTP *http.Client
	// CachePasswords controls whether prompted credentials are stored.
	CachePasswords bool
	// TempDir is where staging directories are created, "/tmp" when empty.
	TempDir string
}

// Resolve prepares the referenced image on the target host.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Resolved, error) {
	if strings.HasPrefix(ref, "http") {
		return r.resolveRemote(ctx, ref)
	}
	return r.resolveLocal(ctx, ref)
}

// resolveLocal verifies a server-side path exists.
func (r *Resolver) resolveLocal(ctx context.Context, ref string) (*Resolved, error) {
	out, err := r.Exec.Output(ctx, "ls "+ref+" 2>/dev/null")
	if err != nil || strings.TrimSpace(out) != ref {
		return nil, &ResolutionError{Ref: ref, Reason: "image does not exist on the server"}
	}
	return &Resolved{Path: ref, Display: ref}, nil
}

// resolveRemote downloads a URL into a fresh staging directory on the host.
func (r *Resolver) resolveRemote(ctx context.Context, ref string) (*Resolved, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, &ResolutionError{Ref: ref, Reason: "invalid URL"}
	}

	display := redacted(parsed)
	transferURL := ref

	if parsed.User != nil {
		rawUser := parsed.User.Username()
		rawPass, hasPass := parsed.User.Password()
		if !hasPass {
			return nil, &ResolutionError{Ref: display, Reason: "password part is missing in image URL"}
		}

		host := parsed.Hostname()
		username, password, err := r.resolveCredentials(host, rawUser, rawPass)
		if err != nil {
			return nil, err
		}

		withCreds := *parsed
		withCreds.User = url.UserPassword(username, password)
		transferURL = withCreds.String()

		if err := r.checkReachable(ctx, transferURL); err != nil {
			// Cached credentials may be stale; drop them before failing.
			_ = r.Creds.Invalidate(host)
			return nil, &ResolutionError{Ref: display, Reason: "check URL or credentials"}
		}
	}

	staging := path.Join(r.tempDir(), uuid.New().String())
	imagePath := staging + "/qcow2-image"

	r.Console.Info("Creating temp directory on the server")
	if err := r.Exec.Run(ctx, "mkdir "+staging); err != nil {
		return nil, err
	}

	r.Console.Info("Downloading image: %s", display)
	if err := r.Exec.Run(ctx, "curl -Lo "+imagePath+" "+transferURL); err != nil {
		return nil, err
	}

	return &Resolved{
		Path:    imagePath,
		Display: display,
		Remote:  true,
		staging: staging,
	}, nil
}

// Cleanup removes the staging directory of a downloaded image. Local images
// have nothing to clean up.
func (r *Resolver) Cleanup(ctx context.Context, res *Resolved) error {
	if res.staging == "" {
		return nil
	}
	r.Console.Info("Cleaning up")
	return r.Exec.Run(ctx, "rm -rf "+res.staging)
}

// resolveCredentials fills in the user and password for a download. Literal
// values from the URL are used as-is; placeholder values of the form
// "_some_label_" are looked up in the credential cache or prompted for, using
// the placeholder text as the prompt label.
func (r *Resolver) resolveCredentials(host, rawUser, rawPass string) (string, string, error) {
	if !isPlaceholder(rawUser) || !isPlaceholder(rawPass) {
		return rawUser, rawPass, nil
	}

	userLabel := prettyLabel(rawUser)
	passLabel := prettyLabel(rawPass)

	record, _ := r.Creds.Lookup(host)

	username := record.Username
	if username == "" {
		var err error
		username, err = r.Console.Prompt(userLabel)
		if err != nil {
			return "", "", err
		}
		if r.CachePasswords {
			_ = r.Creds.Store(host, credentials.Record{Username: username})
		}
	}

	password := record.Password
	if password == "" {
		var err error
		password, err = r.Console.PromptSecret(passLabel)
		if err != nil {
			return "", "", err
		}
		if r.CachePasswords {
			_ = r.Creds.Store(host, credentials.Record{Password: password})
		}
	}

	return username, password, nil
}

// checkReachable performs a HEAD request against the transfer URL.
func (r *Resolver) checkReachable(ctx context.Context, transferURL string) error {
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, transferURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (r *Resolver) tempDir() string {
	if r.TempDir != "" {
		return r.TempDir
	}
	return "/tmp"
}

// redacted renders a URL without its userinfo component.
func redacted(u *url.URL) string {
	clean := *u
	clean.User = nil
	return clean.String()
}

// isPlaceholder reports whether a URL credential part is a prompt placeholder
// like "_image_server_password_".
func isPlaceholder(s string) bool {
	return strings.HasPrefix(s, "_") && strings.HasSuffix(s, "_")
}

// prettyLabel converts a placeholder into a prompt label:
// "_image_server_username_" becomes "Image Server Username".
func prettyLabel(s string) string {
	words := strings.Fields(strings.ReplaceAll(strings.Trim(s, "_"), "_", " "))
	for i, word := range words {
		if word == "ssr" {
			words[i] = "SSR"
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
