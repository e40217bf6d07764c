//go:build windows

package pipe

import (
	"errors"
	"fmt"
	"net"
	"os/user"
	"regexp"
	"strings"

	"github.com/Microsoft/go-winio"
)

const maxResponseBytes = 64 * 1024

// listen opens a Windows named pipe restricted to the current user's SID,
// the same DACL discipline applied to the listener's security descriptor.
func listen(path string) (net.Listener, error) {
	sd, err := pipeSecurityDescriptor()
	if err != nil {
		return nil, err
	}
	return winio.ListenPipe(path, &winio.PipeConfig{
		SecurityDescriptor: sd,
		MessageMode:        false,
		InputBufferSize:    int32(maxRequestBytes),
		OutputBufferSize:   int32(maxResponseBytes),
	})
}

func defaultPathForUser(username string) string {
	return `\\.\pipe\agentwatch-` + username
}

var validSIDPattern = regexp.MustCompile(`^S-1(-\d+)+$`)

func pipeSecurityDescriptor() (string, error) {
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	sid := strings.TrimSpace(current.Uid)
	if sid == "" {
		return "", errors.New("current user SID is unavailable")
	}
	if !validSIDPattern.MatchString(sid) {
		return "", fmt.Errorf("current user SID has unexpected format: %s", sid)
	}
	return fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GA;;;%s)", sid), nil
}
