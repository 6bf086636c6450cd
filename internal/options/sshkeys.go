package options

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// EncodeSSHKeys prepares the sshkeys option value for the Proxmox API. A value
// starting with "/" is read from that file on the local machine, a value
// starting with "http" is fetched from that URL. The result is percent-encoded
// as the API requires.
func EncodeSSHKeys(keys string) (string, error) {
	if strings.HasPrefix(keys, "/") {
		data, err := os.ReadFile(keys)
		if err != nil {
			return "", fmt.Errorf("could not read sshkeys file %s: %w", keys, err)
		}
		if len(data) == 0 {
			return "", fmt.Errorf("there is no key in file: %s", keys)
		}
		keys = string(data)
	}

	if strings.HasPrefix(keys, "http") {
		resp, err := http.Get(keys)
		if err != nil {
			return "", fmt.Errorf("could not load sshkeys from url %s: %w", keys, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("could not load sshkeys from url %s: status %d", keys, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("could not load sshkeys from url %s: %w", keys, err)
		}
		keys = string(data)
	}

	return percentEncode(keys), nil
}

// percentEncode encodes every reserved character, including slashes and
// spaces. url.QueryEscape uses "+" for spaces, which the API does not accept.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
